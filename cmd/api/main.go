package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dvloznov/expenseflow/internal/api/handlers"
	"github.com/dvloznov/expenseflow/internal/api/middleware"
	"github.com/dvloznov/expenseflow/internal/extraction"
	"github.com/dvloznov/expenseflow/internal/gcs"
	"github.com/dvloznov/expenseflow/internal/jobs"
	"github.com/dvloznov/expenseflow/internal/jobs/inmemory"
	"github.com/dvloznov/expenseflow/internal/logger"
	"github.com/dvloznov/expenseflow/internal/pipeline"
	"github.com/dvloznov/expenseflow/internal/store"
	bqstore "github.com/dvloznov/expenseflow/internal/store/bigquery"
	"github.com/dvloznov/expenseflow/internal/store/memory"
)

func main() {
	// Parse command-line flags
	var (
		port      = flag.String("port", "8080", "HTTP server port")
		storeKind = flag.String("store", envOr("EXPENSE_STORE", "memory"), "expense store backend: memory or bigquery")
		project   = flag.String("project", os.Getenv("GOOGLE_CLOUD_PROJECT"), "GCP project ID (or set GOOGLE_CLOUD_PROJECT env)")
		dataset   = flag.String("dataset", envOr("BQ_DATASET", "expenseflow"), "BigQuery dataset ID")
		table     = flag.String("table", envOr("BQ_TABLE", "expenses"), "BigQuery table ID")
		model     = flag.String("model", envOr("GEMINI_MODEL", extraction.DefaultModelName), "Gemini model name")
	)
	flag.Parse()

	// Initialize logger
	log := logger.New()

	ctx := context.Background()

	// Initialize expense store
	var expenseStore store.ExpenseStore
	switch *storeKind {
	case "memory":
		expenseStore = memory.NewStore()
		log.Warn().Msg("Using in-memory expense store - data is lost on restart")
	case "bigquery":
		if *project == "" {
			log.Fatal().Msg("BigQuery store requires a project (set -project or GOOGLE_CLOUD_PROJECT)")
		}
		bq, err := bqstore.New(ctx, *project, *dataset, *table, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create BigQuery store")
		}
		defer bq.Close()
		expenseStore = bq
	default:
		log.Fatal().Str("store", *storeKind).Msg("Unknown store backend")
	}

	// Initialize extraction model
	gemini, err := extraction.NewGemini(ctx, *model, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Gemini client")
	}

	svc := pipeline.NewService(expenseStore, gemini, gemini, log)

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore)

	// The async ingestion path needs Cloud Storage access. If the client
	// cannot be created the endpoint is disabled rather than failing boot.
	var publisher jobs.Publisher
	fetcher, err := gcs.NewClient(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Cloud Storage unavailable - async ingestion disabled")
	} else {
		defer fetcher.Close()
		publisher = jobQueue
	}

	// Start worker in background to process jobs. Without a fetcher there
	// is no publisher either, so nothing could ever reach the worker.
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	if publisher != nil {
		jobHandler := func(ctx context.Context, job *jobs.IngestDocumentJob) error {
			log.Info().
				Str("job_id", job.JobID).
				Str("gcs_uri", job.GCSURI).
				Msg("Processing ingestion job")

			data, err := fetcher.Fetch(ctx, job.GCSURI)
			if err != nil {
				log.Error().Err(err).Str("job_id", job.JobID).Msg("Failed to fetch file from GCS")
				return err
			}

			outcome, err := svc.ProcessFile(ctx, gcs.Filename(job.GCSURI), data, job.Persist)
			if err != nil {
				log.Error().Err(err).Str("job_id", job.JobID).Msg("Pipeline execution failed")
				return err
			}

			job.Result = outcome
			log.Info().
				Str("job_id", job.JobID).
				Str("status", string(outcome.Status)).
				Int("added", outcome.AddedCount).
				Msg("Ingestion job completed")
			return nil
		}

		go func() {
			log.Info().Msg("Starting job worker")
			if err := jobQueue.Start(workerCtx, jobHandler); err != nil && err != context.Canceled {
				log.Error().Err(err).Msg("Job worker stopped with error")
			}
		}()
	}

	// Initialize handlers
	expensesHandler := handlers.NewExpensesHandler(expenseStore, svc, publisher, log)
	jobsHandler := handlers.NewJobsHandler(jobStore, log)

	// Create router
	mux := http.NewServeMux()

	// Expenses endpoints
	mux.HandleFunc("/api/expenses", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			expensesHandler.ListExpenses(w, r)
		case http.MethodDelete:
			expensesHandler.DeleteAll(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/expenses/text", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			expensesHandler.ProcessText(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/expenses/upload", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			expensesHandler.UploadFile(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/expenses/ingest", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			expensesHandler.IngestGCS(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Jobs endpoints
	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobsHandler.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			// Extract job ID from path
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			jobsHandler.GetJob(w, r, jobID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(mux),
			),
		),
	)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", *port).Str("store", *storeKind).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Cancel worker context
	cancelWorker()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
