// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cor (Chain of Responsibility) provides the building blocks for
// the reel pipeline's workflows. A workflow is a chain of commands; each
// command reads its input from a shared context, performs one unit of work
// (cut a chunk, render a reel, call the metadata model), and writes its
// output back for the next command. This file defines the interfaces that
// every command, chain, and context implementation must satisfy.
package cor

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// CtxIn and CtxOut are the keys that carry the primary data flow through a
// chain. A chain moves the value a command stored under CtxOut into CtxIn
// before running the next command.
const (
	CtxIn  = "__IN__"
	CtxOut = "__OUT__"
)

// Context is the shared state object passed through a chain of commands.
// It carries data, errors, temp-file bookkeeping, and the standard Go
// context used for cancellation and trace propagation.
type Context interface {
	// SetContext sets the standard Go context. The chain uses this to scope
	// each command under its own trace span and to propagate cancellation.
	SetContext(context context.Context)

	// GetContext retrieves the standard Go context.
	GetContext() context.Context

	// Add stores a key-value pair, returning the Context for chaining.
	Add(key string, value interface{}) Context

	// AddError records an error keyed by the command that produced it.
	AddError(key string, err error)

	// GetErrors returns all errors collected during the workflow.
	GetErrors() map[string]error

	// Get retrieves a value by key, or nil when absent.
	Get(key string) interface{}

	// Remove deletes a key-value pair.
	Remove(key string)

	// HasErrors reports whether any command recorded an error.
	HasErrors() bool

	// AddTempFile tracks a scratch file for cleanup at Close.
	AddTempFile(file string)

	// GetTempFiles returns all tracked scratch file paths.
	GetTempFiles() []string

	// Close removes tracked scratch files. Defer it at workflow start.
	Close()
}

// Executable is anything with a core execution step.
type Executable interface {
	// Execute runs the business logic against the shared Context.
	Execute(context Context)
}

// Command is an atomic, thread-safe unit of pipeline work.
type Command interface {
	Executable

	// GetName returns the command's name, used for logging and telemetry
	// and as the error key in the Context.
	GetName() string

	// GetInputParam returns the context key holding this command's input.
	GetInputParam() string

	// GetOutputParam returns the context key receiving this command's output.
	GetOutputParam() string

	// IsExecutable is the precondition check run before Execute.
	IsExecutable(context Context) bool

	// GetTracer returns the OpenTelemetry tracer for this command.
	GetTracer() trace.Tracer

	// GetMeter returns the OpenTelemetry meter for this command.
	GetMeter() metric.Meter

	// GetSuccessCounter returns the counter incremented on success.
	GetSuccessCounter() metric.Int64Counter

	// GetErrorCounter returns the counter incremented on failure.
	GetErrorCounter() metric.Int64Counter
}

// Chain is an ordered sequence of commands. A Chain is itself a Command,
// so chains can nest inside other chains.
type Chain interface {
	Command

	// ContinueOnFailure configures whether the chain keeps executing after
	// a command records an error. The default is to stop.
	ContinueOnFailure(bool) Chain

	// AddCommand appends a command to the execution sequence.
	AddCommand(command Command) Chain
}
