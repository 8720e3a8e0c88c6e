// Command reindex rebuilds the semantic message index from history.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"teamchat/internal/chunker"
	"teamchat/internal/config"
	"teamchat/internal/db"
	"teamchat/internal/embeddings"
	"teamchat/internal/indexer"
	"teamchat/internal/repositories"
	"teamchat/internal/vectorindex"
)

func main() {
	var (
		mode      string
		since     string
		batchSize int
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the semantic message index",
		Long: `Rebuild the semantic message index by chunking, embedding and upserting
message history. Full mode revisits everything; incremental mode only visits
messages created at or after --since.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := indexer.Options{Mode: mode, BatchSize: batchSize, DryRun: dryRun}

			switch mode {
			case indexer.ModeFull:
				if since != "" {
					return fmt.Errorf("--since only applies to incremental mode")
				}
			case indexer.ModeIncremental:
				if since == "" {
					return indexer.ErrSinceRequired
				}
				cutoff, err := time.Parse(time.RFC3339, since)
				if err != nil {
					return fmt.Errorf("invalid --since %q: %w", since, err)
				}
				opts.Since = &cutoff
			default:
				return fmt.Errorf("invalid --mode %q: want full or incremental", mode)
			}

			cfg := config.Load()
			logrus.SetFormatter(&logrus.JSONFormatter{})

			database, err := db.Connect(cfg.DatabaseDSN, cfg.OpenAI.Dimensions)
			if err != nil {
				return fmt.Errorf("connect to db: %w", err)
			}
			defer database.Close()

			ix := indexer.New(
				repositories.NewMessageRepo(database),
				chunker.NewSplitter(cfg.Chunking.Size, cfg.Chunking.Overlap),
				embeddings.NewGenerator(embeddings.NewOpenAIClient(cfg.OpenAI), cfg.Embedding.BatchSize, cfg.Embedding.Cooldown),
				vectorindex.New(database, cfg.OpenAI.Dimensions),
			)

			report, err := ix.Run(context.Background(), opts)
			if err != nil {
				return err
			}

			fmt.Printf("indexed %d messages (%d skipped) into %d chunks, %d vectors upserted in %s\n",
				report.MessagesScanned, report.MessagesSkipped, report.ChunksBuilt,
				report.VectorsUpserted, report.Elapsed.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", indexer.ModeFull, "full or incremental")
	cmd.Flags().StringVar(&since, "since", "", "RFC3339 cutoff for incremental mode")
	cmd.Flags().IntVar(&batchSize, "batch-size", 100, "messages per page")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "chunk and count without embedding or writing")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
