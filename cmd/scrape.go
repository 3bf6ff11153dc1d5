package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newScrapeCmd() *cobra.Command {
	var sources []string
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Runs the scrapers once and stores classified tools",
		Long: `Fetches candidates from every configured source (or only the sources
named with --source), classifies them, and persists the accepted tools.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			reports := a.runner.Run(cmd.Context(), sources...)
			for _, report := range reports {
				if report.Error != "" {
					a.logger.Error("source failed",
						zap.String("source", report.Source),
						zap.String("error", report.Error),
					)
					continue
				}
				a.logger.Info("source finished",
					zap.String("source", report.Source),
					zap.Int("discovered", report.Discovered),
					zap.Int("accepted", report.Accepted),
					zap.Int("saved", report.Saved),
					zap.Int("duplicates", report.Duplicates),
				)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&sources, "source", nil, "limit the run to the named sources")
	return cmd
}
