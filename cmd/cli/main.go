package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/expenseflow/internal/extraction"
	"github.com/dvloznov/expenseflow/internal/logger"
	"github.com/dvloznov/expenseflow/internal/pipeline"
	"github.com/dvloznov/expenseflow/internal/store"
	bqstore "github.com/dvloznov/expenseflow/internal/store/bigquery"
	"github.com/dvloznov/expenseflow/internal/store/memory"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "text":
		runText(log)
	case "file":
		runFile(log)
	case "list":
		runList(log)
	case "clear":
		runClear(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("ExpenseFlow CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  text      Extract and reconcile expenses from free-form text")
	fmt.Println("  file      Extract and reconcile expenses from a local statement file")
	fmt.Println("  list      List stored expenses")
	fmt.Println("  clear     Delete all stored expenses")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// storeFlags registers the shared backend flags on a subcommand flag set.
type storeFlags struct {
	kind    *string
	project *string
	dataset *string
	table   *string
}

func registerStoreFlags(fs *flag.FlagSet) storeFlags {
	return storeFlags{
		kind:    fs.String("store", envOr("EXPENSE_STORE", "memory"), "expense store backend: memory or bigquery"),
		project: fs.String("project", os.Getenv("GOOGLE_CLOUD_PROJECT"), "GCP project ID"),
		dataset: fs.String("dataset", envOr("BQ_DATASET", "expenseflow"), "BigQuery dataset ID"),
		table:   fs.String("table", envOr("BQ_TABLE", "expenses"), "BigQuery table ID"),
	}
}

func openStore(ctx context.Context, f storeFlags, log zerolog.Logger) (store.ExpenseStore, func(), error) {
	switch *f.kind {
	case "memory":
		return memory.NewStore(), func() {}, nil
	case "bigquery":
		if *f.project == "" {
			return nil, nil, fmt.Errorf("bigquery store requires -project or GOOGLE_CLOUD_PROJECT")
		}
		bq, err := bqstore.New(ctx, *f.project, *f.dataset, *f.table, log)
		if err != nil {
			return nil, nil, err
		}
		return bq, func() { bq.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", *f.kind)
	}
}

func runText(log zerolog.Logger) {
	fs := flag.NewFlagSet("text", flag.ExitOnError)
	text := fs.String("text", "", "free-form text describing transactions (reads stdin when omitted)")
	noSave := fs.Bool("no-save", false, "run the pipeline without persisting accepted records")
	model := fs.String("model", envOr("GEMINI_MODEL", extraction.DefaultModelName), "Gemini model name")
	sf := registerStoreFlags(fs)
	fs.Parse(os.Args[2:])

	if *text == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read stdin")
		}
		*text = string(data)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	svc, cleanup := buildService(ctx, sf, *model, log)
	defer cleanup()

	outcome, err := svc.ProcessText(ctx, *text, !*noSave)
	if err != nil {
		log.Fatal().Err(err).Msg("Ingestion failed")
	}
	printOutcome(outcome)
}

func runFile(log zerolog.Logger) {
	fs := flag.NewFlagSet("file", flag.ExitOnError)
	path := fs.String("file", "", "path to a .csv or .txt statement file")
	noSave := fs.Bool("no-save", false, "run the pipeline without persisting accepted records")
	model := fs.String("model", envOr("GEMINI_MODEL", extraction.DefaultModelName), "Gemini model name")
	sf := registerStoreFlags(fs)
	fs.Parse(os.Args[2:])

	if *path == "" {
		log.Fatal().Msg("Error: --file is required")
	}

	data, err := os.ReadFile(*path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read file")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	svc, cleanup := buildService(ctx, sf, *model, log)
	defer cleanup()

	outcome, err := svc.ProcessFile(ctx, filepath.Base(*path), data, !*noSave)
	if err != nil {
		log.Fatal().Err(err).Msg("Ingestion failed")
	}
	printOutcome(outcome)
}

func runList(log zerolog.Logger) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	sortBy := fs.String("sort", store.SortByDate, "sort field: date, value or description")
	asc := fs.Bool("asc", false, "sort ascending instead of descending")
	sf := registerStoreFlags(fs)
	fs.Parse(os.Args[2:])

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	st, cleanup, err := openStore(ctx, sf, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer cleanup()

	expenses, err := st.ListAll(ctx, store.ListOptions{SortBy: *sortBy, Descending: !*asc})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list expenses")
	}

	for _, e := range expenses {
		fmt.Printf("%s  %-10s  %10.2f  %-3s  %s\n", e.ID, e.Date, e.Value, e.Direction, e.Description)
	}
	fmt.Printf("%d expense(s)\n", len(expenses))
}

func runClear(log zerolog.Logger) {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	sf := registerStoreFlags(fs)
	fs.Parse(os.Args[2:])

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	st, cleanup, err := openStore(ctx, sf, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer cleanup()

	deleted, err := st.DeleteAll(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to delete expenses")
	}
	fmt.Printf("Deleted %d expense(s)\n", deleted)
}

// buildService opens the store and the extraction model and wires the
// pipeline. The returned cleanup closes whatever was opened.
func buildService(ctx context.Context, sf storeFlags, model string, log zerolog.Logger) (*pipeline.Service, func()) {
	st, cleanup, err := openStore(ctx, sf, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}

	gemini, err := extraction.NewGemini(ctx, model, log)
	if err != nil {
		cleanup()
		log.Fatal().Err(err).Msg("Failed to create Gemini client")
	}

	return pipeline.NewService(st, gemini, gemini, log), cleanup
}

func printOutcome(outcome *pipeline.Outcome) {
	out, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render outcome: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
