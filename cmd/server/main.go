// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
// *****************************************************************************************************//
// Package main is the entry point for the reel pipeline backend server.
//
// This application sets up and runs a web server using the Gin framework. It provides a REST API
// for ingesting source videos, tracking pipeline jobs, browsing rendered reels, and managing the
// publish queue. The server is instrumented with OpenTelemetry for logging, tracing, and metrics.
//
// The main function initializes the application's configuration, sets up logging and telemetry,
// and initializes the application state, including clients for Google Cloud services. It defines
// API routes for source ingestion, job status polling and cancellation, reel download links, and
// publish queue admission and lifecycle transitions.
//
// The server also sets up and manages a background Pub/Sub listener, which triggers the ingest
// workflow when trigger messages arrive on the configured topic.
//
// Functions:
//   - main: The main entry point of the application. It sets up the server, configures routes,
//     initializes services, and handles graceful shutdown.
//   - SourceRouter: Routes for ingesting source videos and listing them with their reels.
//   - JobRouter: Routes for job status polling and cancellation.
//   - ReelRouter: Routes for reel details and signed download URLs.
//   - QueueRouter: Routes for publish queue admission, transitions, and removal.
//   - AccountRouter: Routes for listing the configured publish accounts.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/jaycherian/gcp-go-reel-pipeline/internal/core/model"
	"github.com/jaycherian/gcp-go-reel-pipeline/internal/core/services"
	"github.com/jaycherian/gcp-go-reel-pipeline/internal/store"
	"github.com/jaycherian/gcp-go-reel-pipeline/internal/telemetry"
)

// main is the primary entry point for the application.
// It orchestrates the setup of logging, telemetry, configuration, cloud services,
// the web server, API routes, and the background ingest listener. It also handles
// graceful shutdown of the server upon receiving an interrupt signal.
func main() {
	// Initialize structured logging for the application.
	telemetry.SetupLogging()
	slog.Info("Logging initialized")

	// Root context for the application. Cancelling it stops the listener
	// and the pipeline worker pool.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load application configuration from TOML files.
	config := GetConfig()

	// Initialize OpenTelemetry for distributed tracing and metrics.
	_, err := telemetry.SetupOpenTelemetry(ctx, config)
	if err != nil {
		slog.Error("Failed to setup OpenTelemetry", "error", err)
		log.Fatal(err)
	}
	slog.Info("Tracing initialized")

	// Initialize the application's state, including all necessary service clients.
	InitState(ctx)
	slog.Info("Initialized State")

	// Set up the Gin web server with default middleware.
	r := gin.Default()

	// Trace incoming requests with OpenTelemetry middleware.
	r.Use(otelgin.Middleware("reel-pipeline-server"))

	// Permissive CORS, suitable for development.
	r.Use(cors.Default())

	// Group routes under the "/api/v1" prefix.
	apiV1 := r.Group("/api/v1")
	{
		SourceRouter(apiV1)
		JobRouter(apiV1)
		ReelRouter(apiV1)
		QueueRouter(apiV1)
		AccountRouter(apiV1)
	}

	srv := &http.Server{
		Addr:         ":8080",
		Handler:      r,
		ReadTimeout:  20 * time.Second,
		WriteTimeout: 20 * time.Second,
	}

	// Start the HTTP server in a separate goroutine so it doesn't block the main thread.
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to listen: ", "error", err)
		}
	}()
	slog.Info("Server Ready on port 8080")

	// Block until an OS interrupt signal is received.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutdown Server ...")

	// Give active requests 5 seconds to complete.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server Shutdown Failed:", "error", err)
	}

	// Stop accepting new jobs and let in-flight pipeline work drain.
	cancel()
	state.pipelineService.Wait()

	log.Println("Server exiting")
}

// statusForStoreError maps the persistence sentinel errors onto HTTP
// status codes. Unknown errors are treated as internal.
func statusForStoreError(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, store.ErrPreconditionFailed):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// SourceRouter sets up the API routes for source video ingestion.
//
// This function defines the following endpoints:
//   - POST /sources: Registers a source video by URL and queues a pipeline job for it.
//   - GET /sources: Lists all registered source videos.
//   - GET /sources/:id: Retrieves one source video by its ID.
//   - GET /sources/:id/chunks: Lists the chunk records of a source video.
//   - GET /sources/:id/reels: Lists the rendered reels of a source video.
//   - GET /sources/:id/jobs: Lists the pipeline jobs of a source video, newest first.
func SourceRouter(r *gin.RouterGroup) {
	sources := r.Group("/sources")
	{
		// Handler for POST /sources
		sources.POST("", func(c *gin.Context) {
			var body struct {
				URL          string  `json:"url" binding:"required"`
				ChunkSeconds float64 `json:"chunk_seconds"`
			}
			if err := c.ShouldBindJSON(&body); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			source, err := state.pipelineService.IngestSource(c, body.URL)
			if err != nil {
				log.Printf("Error ingesting source: %v\n", err)
				c.JSON(http.StatusBadGateway, gin.H{"error": "could not probe the source video"})
				return
			}

			job, err := state.pipelineService.EnqueueJob(c, source.ID, model.JobTypePipeline, body.ChunkSeconds)
			if err != nil {
				if errors.Is(err, services.ErrPoolSaturated) {
					c.JSON(http.StatusServiceUnavailable, gin.H{"error": "pipeline worker pool is saturated"})
					return
				}
				c.JSON(statusForStoreError(err), gin.H{"error": err.Error()})
				return
			}

			// The job runs asynchronously; return it so the caller can poll.
			c.JSON(http.StatusAccepted, gin.H{"source": source, "job": job})
		})

		// Handler for GET /sources
		sources.GET("", func(c *gin.Context) {
			out, err := state.store.ListSourceVideos(c)
			if err != nil {
				c.Status(http.StatusInternalServerError)
				return
			}
			c.JSON(http.StatusOK, out)
		})

		// Handler for GET /sources/:id
		sources.GET("/:id", func(c *gin.Context) {
			out, err := state.store.GetSourceVideo(c, c.Param("id"))
			if err != nil {
				c.Status(statusForStoreError(err))
				return
			}
			c.JSON(http.StatusOK, out)
		})

		// Handler for GET /sources/:id/chunks
		sources.GET("/:id/chunks", func(c *gin.Context) {
			if _, err := state.store.GetSourceVideo(c, c.Param("id")); err != nil {
				c.Status(statusForStoreError(err))
				return
			}
			out, err := state.store.ListChunksBySource(c, c.Param("id"))
			if err != nil {
				c.Status(http.StatusInternalServerError)
				return
			}
			c.JSON(http.StatusOK, out)
		})

		// Handler for GET /sources/:id/reels
		sources.GET("/:id/reels", func(c *gin.Context) {
			if _, err := state.store.GetSourceVideo(c, c.Param("id")); err != nil {
				c.Status(statusForStoreError(err))
				return
			}
			out, err := state.store.ListReelsBySource(c, c.Param("id"))
			if err != nil {
				c.Status(http.StatusInternalServerError)
				return
			}
			c.JSON(http.StatusOK, out)
		})

		// Handler for GET /sources/:id/jobs
		sources.GET("/:id/jobs", func(c *gin.Context) {
			if _, err := state.store.GetSourceVideo(c, c.Param("id")); err != nil {
				c.Status(statusForStoreError(err))
				return
			}
			out, err := state.store.ListJobsBySource(c, c.Param("id"))
			if err != nil {
				c.Status(http.StatusInternalServerError)
				return
			}
			c.JSON(http.StatusOK, out)
		})
	}
}

// JobRouter sets up the API routes for pipeline job tracking.
//
// This function defines the following endpoints:
//   - GET /jobs: Lists all jobs, newest first.
//   - GET /jobs/:id: Retrieves the status and progress of one job.
//   - POST /jobs/:id/cancel: Requests cancellation of a job. Queued jobs
//     cancel immediately; processing jobs stop at the next stage boundary.
func JobRouter(r *gin.RouterGroup) {
	jobs := r.Group("/jobs")
	{
		jobs.GET("", func(c *gin.Context) {
			out, err := state.store.ListJobs(c)
			if err != nil {
				c.Status(http.StatusInternalServerError)
				return
			}
			c.JSON(http.StatusOK, out)
		})

		jobs.GET("/:id", func(c *gin.Context) {
			out, err := state.pipelineService.GetJob(c, c.Param("id"))
			if err != nil {
				c.Status(statusForStoreError(err))
				return
			}
			c.JSON(http.StatusOK, out)
		})

		jobs.POST("/:id/cancel", func(c *gin.Context) {
			err := state.pipelineService.CancelJob(c, c.Param("id"))
			if err != nil {
				if errors.Is(err, services.ErrJobNotCancellable) {
					c.JSON(http.StatusConflict, gin.H{"error": "job is already terminal"})
					return
				}
				c.Status(statusForStoreError(err))
				return
			}
			c.Status(http.StatusAccepted)
		})
	}
}

// ReelRouter sets up the API routes for rendered reels.
//
// This function defines the following endpoints:
//   - GET /reels/:id: Retrieves one reel with its metadata tuple.
//   - GET /reels/:id/download: Archives the reel and returns a time-limited,
//     signed URL for downloading it.
func ReelRouter(r *gin.RouterGroup) {
	reels := r.Group("/reels")
	{
		reels.GET("/:id", func(c *gin.Context) {
			out, err := state.store.GetReel(c, c.Param("id"))
			if err != nil {
				c.Status(statusForStoreError(err))
				return
			}
			c.JSON(http.StatusOK, out)
		})

		reels.GET("/:id/download", func(c *gin.Context) {
			reel, err := state.store.GetReel(c, c.Param("id"))
			if err != nil {
				c.JSON(http.StatusNotFound, gin.H{"error": "Reel not found"})
				return
			}

			signedURL, err := state.reelLinker.PublicURL(c, reel)
			if err != nil {
				log.Printf("Error generating signed URL: %v", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not generate download URL"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"url": signedURL})
		})
	}
}

// QueueRouter sets up the API routes for the publish queue.
//
// This function defines the following endpoints:
//   - POST /queue: Admits a (reel, account) pair to the queue.
//   - GET /queue: Lists queue entries, filtered by account, reel, or status.
//   - GET /queue/:id: Retrieves one queue entry.
//   - POST /queue/:id/upload: Publishes the entry's reel through the Graph API now.
//   - POST /queue/:id/uploaded: Records an upload completed by an external worker.
//   - POST /queue/:id/failed: Records a failed upload attempt.
//   - DELETE /queue/:id: Removes the entry. The reel itself is untouched.
func QueueRouter(r *gin.RouterGroup) {
	queue := r.Group("/queue")
	{
		queue.POST("", func(c *gin.Context) {
			var body struct {
				ReelID    string `json:"reel_id" binding:"required"`
				AccountID string `json:"account_id" binding:"required"`
			}
			if err := c.ShouldBindJSON(&body); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			entry, err := state.queueService.Admit(c, body.ReelID, body.AccountID)
			if err != nil {
				c.JSON(statusForStoreError(err), gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusCreated, entry)
		})

		queue.GET("", func(c *gin.Context) {
			filter := store.QueueFilter{
				AccountID: c.Query("account_id"),
				ReelID:    c.Query("reel_id"),
				Status:    model.QueueEntryStatus(c.Query("status")),
			}
			out, err := state.queueService.List(c, filter)
			if err != nil {
				c.Status(http.StatusInternalServerError)
				return
			}
			c.JSON(http.StatusOK, out)
		})

		queue.GET("/:id", func(c *gin.Context) {
			out, err := state.queueService.Get(c, c.Param("id"))
			if err != nil {
				c.Status(statusForStoreError(err))
				return
			}
			c.JSON(http.StatusOK, out)
		})

		queue.POST("/:id/upload", func(c *gin.Context) {
			entry, err := state.queueService.Upload(c, c.Param("id"))
			if err != nil {
				// The entry was marked failed already; surface the cause.
				c.JSON(statusForStoreError(err), gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, entry)
		})

		queue.POST("/:id/uploaded", func(c *gin.Context) {
			var body struct {
				PostID  string `json:"post_id" binding:"required"`
				PostURL string `json:"post_url"`
			}
			if err := c.ShouldBindJSON(&body); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			entry, err := state.queueService.MarkUploaded(c, c.Param("id"), body.PostID, body.PostURL)
			if err != nil {
				c.JSON(statusForStoreError(err), gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, entry)
		})

		queue.POST("/:id/failed", func(c *gin.Context) {
			var body struct {
				Error string `json:"error" binding:"required"`
			}
			if err := c.ShouldBindJSON(&body); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			entry, err := state.queueService.MarkFailed(c, c.Param("id"), body.Error)
			if err != nil {
				c.JSON(statusForStoreError(err), gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, entry)
		})

		queue.DELETE("/:id", func(c *gin.Context) {
			if err := state.queueService.Remove(c, c.Param("id")); err != nil {
				c.Status(statusForStoreError(err))
				return
			}
			c.Status(http.StatusNoContent)
		})
	}
}

// AccountRouter sets up the API route for listing publish accounts.
// Account CRUD and OAuth live outside this service; this is a read-only view.
func AccountRouter(r *gin.RouterGroup) {
	accounts := r.Group("/accounts")
	{
		accounts.GET("", func(c *gin.Context) {
			out, err := state.store.ListAccounts(c)
			if err != nil {
				c.Status(http.StatusInternalServerError)
				return
			}
			c.JSON(http.StatusOK, out)
		})
	}
}
