package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest FILE...",
	Short: "Ingest PDF files into the vector store and exit",
	Long: `Splits each PDF into overlapping chunks, embeds them and appends them to
the configured collection. Source files are left in place.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		total := 0
		for _, path := range args {
			n, err := a.ingest.IngestFile(cmd.Context(), path)
			if err != nil {
				return fmt.Errorf("ingest %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chunks\n", path, n)
			total += n
		}
		log.Info().Int("files", len(args)).Int("chunks", total).Msg("Data ingestion complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
