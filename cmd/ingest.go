package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/beaconhq/beacon/internal/app"
	"github.com/beaconhq/beacon/internal/knowledge"
)

var ingestSource string

var ingestCmd = &cobra.Command{
	Use:   "ingest <file-or-url>",
	Short: "Ingest a text file or web page into the knowledge store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(cmd.Context(), args[0])
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestSource, "source", "",
		"source name for the ingested chunks (default: file name or url)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(parent context.Context, target string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := app.Setup(parent, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	var text, source string
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		article, err := knowledge.FetchArticle(parent, nil, target)
		if err != nil {
			return fmt.Errorf("fetching %s: %w", target, err)
		}
		text = article.Text
		source = target
	} else {
		raw, err := os.ReadFile(target) // #nosec G304 -- path comes from the operator
		if err != nil {
			return fmt.Errorf("reading %s: %w", target, err)
		}
		text = string(raw)
		source = filepath.Base(target)
	}
	if ingestSource != "" {
		source = ingestSource
	}

	result, err := a.Ingestor.Ingest(parent, source, text)
	if err != nil {
		return fmt.Errorf("ingesting %s: %w", target, err)
	}

	fmt.Printf("ingested %q: %d chunks\n", result.Source, result.Chunks)
	return nil
}
