package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/stackfolio/portfolio-rag/internal/adapter/ai"
	"github.com/stackfolio/portfolio-rag/internal/adapter/ingest"
	"github.com/stackfolio/portfolio-rag/internal/adapter/store"
	"github.com/stackfolio/portfolio-rag/internal/domain"
	"github.com/stackfolio/portfolio-rag/internal/port"
	"github.com/stackfolio/portfolio-rag/internal/service"
	"github.com/stackfolio/portfolio-rag/pkg/config"

	_ "github.com/lib/pq"
)

var (
	flagProjectID string
	flagForce     bool
	flagBatchSize int
	flagDelay     float64
)

var rootCmd = &cobra.Command{
	Use:   "ragctl",
	Short: "Operate the portfolio repository knowledge base from the command line",
}

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process one project's repository, or every project with a linked repository",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp()
		if err != nil {
			return err
		}
		defer app.close()

		if app.cfg.OpenAIAPIKey == "" {
			return errors.New("OPENAI_API_KEY is required for processing")
		}

		ctx := cmd.Context()
		if flagProjectID != "" {
			return processOne(ctx, app, flagProjectID)
		}

		projects, err := app.pg.ListProjects(ctx)
		if err != nil {
			return err
		}

		processed, failed, skipped := 0, 0, 0
		for _, p := range projects {
			if p.GitHubURL == "" {
				skipped++
				continue
			}
			fmt.Printf("Processing %s (%s)...\n", p.Title, p.ID)
			if err := app.processor.Process(ctx, p.ID, flagForce); err != nil {
				fmt.Printf("  failed: %v\n", err)
				failed++
				continue
			}
			processed++
		}
		fmt.Printf("\nDone: %d processed, %d failed, %d without repository\n", processed, failed, skipped)
		if failed > 0 {
			return fmt.Errorf("%d project(s) failed", failed)
		}
		return nil
	},
}

var resetFailedCmd = &cobra.Command{
	Use:   "reset-failed",
	Short: "Return every failed processing record to pending",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp()
		if err != nil {
			return err
		}
		defer app.close()

		count, err := app.processor.ResetFailed(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Reset %d failed record(s) to pending\n", count)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show processing status for one project or all projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp()
		if err != nil {
			return err
		}
		defer app.close()

		ctx := cmd.Context()
		if flagProjectID != "" {
			p, err := app.pg.GetProject(ctx, flagProjectID)
			if err != nil {
				return err
			}
			printStatus(ctx, app, p)
			return nil
		}

		projects, err := app.pg.ListProjects(ctx)
		if err != nil {
			return err
		}
		for i := range projects {
			printStatus(ctx, app, &projects[i])
		}
		return nil
	},
}

func processOne(ctx context.Context, app *cliApp, projectID string) error {
	p, err := app.pg.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	fmt.Printf("Processing %s (%s)...\n", p.Title, p.ID)
	return app.processor.Process(ctx, p.ID, flagForce)
}

func printStatus(ctx context.Context, app *cliApp, p *domain.Project) {
	rec, numChunks, err := app.processor.Status(ctx, p.ID)
	switch {
	case errors.Is(err, port.ErrRecordNotFound):
		fmt.Printf("%-38s %-24s pending (never processed)\n", p.ID, truncate(p.Title, 24))
	case err != nil:
		fmt.Printf("%-38s %-24s error: %v\n", p.ID, truncate(p.Title, 24), err)
	default:
		line := fmt.Sprintf("%-38s %-24s %s %d%%", p.ID, truncate(p.Title, 24), rec.State, rec.Progress)
		if rec.State == domain.StateCompleted {
			line += fmt.Sprintf(" (%d chunks)", numChunks)
		}
		if rec.LastError != "" {
			line += fmt.Sprintf(" [%s after %d attempt(s): %s]", rec.ErrorKind, rec.Attempts, truncate(rec.LastError, 60))
		}
		fmt.Println(line)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// cliApp bundles the pieces each command needs.
type cliApp struct {
	cfg       *config.Config
	pg        *store.PostgresStore
	processor *service.ProcessingService
}

func (a *cliApp) close() {
	a.pg.Close()
}

func buildApp() (*cliApp, error) {
	_ = godotenv.Load()
	cfg := config.Load()

	pg, err := store.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pg.InitSchema(context.Background()); err != nil {
		pg.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	fetcher := ingest.NewGitingestClient(cfg.GitingestURL, time.Duration(cfg.GitingestTimeoutSeconds)*time.Second)
	embedder := ai.NewOpenAIEmbedder(ai.OpenAIConfig{
		BaseURL: cfg.EmbeddingBaseURL,
		Model:   cfg.EmbeddingModel,
		APIKey:  cfg.OpenAIAPIKey,
		Timeout: time.Duration(cfg.EmbeddingTimeoutSecs) * time.Second,
	})

	batchSize := cfg.EmbedBatchSize
	if flagBatchSize > 0 {
		batchSize = flagBatchSize
	}
	batchDelay := time.Duration(cfg.EmbedBatchDelayMS) * time.Millisecond
	if flagDelay >= 0 {
		batchDelay = time.Duration(flagDelay * float64(time.Second))
	}

	processor := service.NewProcessingService(pg, store.NewProcessingStore(pg), fetcher, embedder, service.ProcessingOptions{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		BatchSize:    batchSize,
		BatchDelay:   batchDelay,
	})

	return &cliApp{cfg: cfg, pg: pg, processor: processor}, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	processCmd.Flags().StringVar(&flagProjectID, "project-id", "", "process only this project")
	processCmd.Flags().BoolVar(&flagForce, "force", false, "reprocess even if already completed")
	processCmd.Flags().IntVar(&flagBatchSize, "batch-size", 0, "embedding batch size (default from config)")
	processCmd.Flags().Float64Var(&flagDelay, "delay", -1, "seconds to wait between embedding batches (default from config)")
	rootCmd.AddCommand(processCmd)

	rootCmd.AddCommand(resetFailedCmd)

	statusCmd.Flags().StringVar(&flagProjectID, "project-id", "", "show only this project")
	rootCmd.AddCommand(statusCmd)
}
