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
// This file implements the reel archive: rendered reels are copied from the
// local working directory into a GCS bucket, and time-limited signed URLs
// are minted for clients to download them without credentials.
package cloud

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"cloud.google.com/go/storage"
)

// ReelArchive copies rendered reel files into a GCS bucket and produces
// signed download links for them.
type ReelArchive struct {
	client *storage.Client
	bucket string
}

// NewReelArchive creates an archive over the given bucket.
func NewReelArchive(client *storage.Client, bucket string) *ReelArchive {
	return &ReelArchive{client: client, bucket: bucket}
}

// Upload streams a local file into the bucket under objectName and
// returns the gs:// URI of the stored object.
func (a *ReelArchive) Upload(ctx context.Context, localPath, objectName string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s for archive: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	w := a.client.Bucket(a.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = "video/mp4"
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write %s to bucket %s: %w", objectName, a.bucket, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize %s in bucket %s: %w", objectName, a.bucket, err)
	}
	return fmt.Sprintf("gs://%s/%s", a.bucket, objectName), nil
}

// GenerateSignedURL creates a time-limited, secure URL for one archived
// object using the V4 signing scheme. Clients can download the reel
// directly from GCS without their own credentials.
func (a *ReelArchive) GenerateSignedURL(objectName string, expires time.Duration) (string, error) {
	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(expires),
	}
	url, err := a.client.Bucket(a.bucket).SignedURL(objectName, opts)
	if err != nil {
		return "", fmt.Errorf("failed to sign URL for %s: %w", objectName, err)
	}
	return url, nil
}
