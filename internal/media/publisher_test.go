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

package media

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newGraphServer fakes the three-call container flow. containerStatus is
// returned on every status poll.
func newGraphServer(t *testing.T, containerStatus string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/media"):
			fmt.Fprint(w, `{"id": "container-1"}`)
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/media_publish"):
			fmt.Fprint(w, `{"id": "post-1", "permalink": "https://social.example/p/post-1"}`)
		case r.Method == http.MethodGet:
			fmt.Fprintf(w, `{"status_code": %q}`, containerStatus)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newTestPublisher(baseURL string) *GraphAPIPublisher {
	p := NewGraphAPIPublisher(baseURL, time.Second)
	p.pollInterval = 5 * time.Millisecond
	p.waitTimeout = 100 * time.Millisecond
	return p
}

func TestPublishRunsContainerFlow(t *testing.T) {
	srv := newGraphServer(t, "FINISHED")
	defer srv.Close()

	p := newTestPublisher(srv.URL)
	result, err := p.Publish(context.Background(), PublishRequest{
		AccountID:   "acct-1",
		AccessToken: "tok",
		VideoURL:    "https://cdn.example/reel.mp4",
		Caption:     "Great clip",
	})
	require.NoError(t, err)
	assert.Equal(t, "post-1", result.PostID)
	assert.Equal(t, "https://social.example/p/post-1", result.PostURL)
}

func TestPublishFailsWhenContainerErrors(t *testing.T) {
	srv := newGraphServer(t, "ERROR")
	defer srv.Close()

	p := newTestPublisher(srv.URL)
	_, err := p.Publish(context.Background(), PublishRequest{AccountID: "acct-1", AccessToken: "tok"})
	require.ErrorIs(t, err, ErrPublish)
	assert.Contains(t, err.Error(), "ERROR")
}

func TestPublishGivesUpOnStuckContainer(t *testing.T) {
	// The platform never finishes processing; the wait deadline must end
	// the upload instead of letting it poll forever.
	srv := newGraphServer(t, "IN_PROGRESS")
	defer srv.Close()

	p := newTestPublisher(srv.URL)
	start := time.Now()
	_, err := p.Publish(context.Background(), PublishRequest{AccountID: "acct-1", AccessToken: "tok"})
	require.ErrorIs(t, err, ErrPublish)
	assert.Contains(t, err.Error(), "gave up waiting")
	assert.Less(t, time.Since(start), 5*time.Second)
}
