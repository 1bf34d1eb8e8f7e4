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

// Package cloud provides components for interacting with Google Cloud services.
// This file defines a generic, reusable Pub/Sub message listener. Receiving
// messages from a subscription is abstracted away, and the actual message
// processing is delegated to a Command.
//
// Logic Flow:
//  1. An instance of PubSubListener is created with a client and a subscription ID.
//  2. A Command (a piece of business logic) is attached to the listener.
//  3. The `Listen` method starts an asynchronous background goroutine.
//  4. The goroutine continuously waits for new messages from the subscription.
//  5. Each message is passed to the attached Command for processing.
//  6. The message is acknowledged only if the Command completes successfully,
//     giving reliable, at-least-once processing.
//  7. The whole process is instrumented with OpenTelemetry.
//
// Structs:
//   - PubSubListener: Manages the connection to a Pub/Sub subscription and
//     holds the command that processes incoming messages.
//
// Functions:
//   - NewPubSubListener: Constructor for a new PubSubListener.
//   - SetCommand: Attaches a processing command to the listener.
//   - Listen: Starts the background process to receive and handle messages.
package cloud

import (
	"context"
	"log"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jaycherian/gcp-go-reel-pipeline/internal/core/cor"
)

// PubSubListener encapsulates the components needed to listen to one
// Google Cloud Pub/Sub subscription. Listeners have a lifecycle
// independent of individual API requests, so they live in the cloud
// package rather than with the API handlers.
type PubSubListener struct {
	client       *pubsub.Client       // The client for interacting with the Pub/Sub service.
	subscription *pubsub.Subscription // The subscription this listener pulls messages from.
	command      cor.Command          // The command to execute for each message received.
}

// NewPubSubListener creates a PubSubListener for the given subscription
// ID with the given processing command. The command may be nil at
// construction time and attached later with SetCommand.
func NewPubSubListener(
	pubsubClient *pubsub.Client,
	subscriptionID string,
	command cor.Command,
) (cmd *PubSubListener, err error) {
	sub := pubsubClient.Subscription(subscriptionID)
	cmd = &PubSubListener{
		client:       pubsubClient,
		subscription: sub,
		command:      command,
	}
	return cmd, nil
}

// SetCommand attaches a command to the listener. The command is only set
// when one is not already attached, so the initial configuration is
// never overwritten by accident.
func (m *PubSubListener) SetCommand(command cor.Command) {
	if m.command == nil {
		m.command = command
	}
}

// Listen starts the asynchronous message receiving process in a
// background goroutine. Cancelling the supplied context stops the
// listener, which is how graceful shutdown reaches it.
func (m *PubSubListener) Listen(ctx context.Context) {
	log.Printf("listening: %s", m.subscription)

	go func() {
		tracer := otel.Tracer("message-listener")

		// Receive blocks and invokes the callback for every message that
		// arrives on the subscription.
		err := m.subscription.Receive(ctx, func(_ context.Context, msg *pubsub.Message) {
			spanCtx, span := tracer.Start(ctx, "receive-message")
			span.SetAttributes(attribute.String("msg", string(msg.Data)))

			// Build a fresh workflow context carrying the message payload
			// as the initial input.
			chainCtx := cor.NewBaseContext()
			chainCtx.SetContext(spanCtx)
			chainCtx.Add(cor.CtxIn, string(msg.Data))

			m.command.Execute(chainCtx)

			if !chainCtx.HasErrors() {
				span.SetStatus(codes.Ok, "success")
				// Ack tells Pub/Sub the message was processed and can be
				// dropped from the subscription.
				msg.Ack()
			} else {
				span.SetStatus(codes.Error, "failed")
				for _, e := range chainCtx.GetErrors() {
					log.Printf("error executing chain: %v", e)
				}
				// Not acking lets the message redeliver after its deadline
				// expires, following the subscription's retry policy.
			}
			span.End()
		})
		if err != nil {
			log.Printf("error receiving data: %v", err)
		}
	}()
}
