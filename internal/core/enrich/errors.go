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

package enrich

import "errors"

// Validation errors for model responses. Any of these triggers the
// default-tuple substitution in the Enricher.
var (
	ErrMissingTitle   = errors.New("enrich: metadata tuple has no title")
	ErrMissingCaption = errors.New("enrich: metadata tuple has no caption")
)
