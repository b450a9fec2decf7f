package main

import (
	"errors"
	"path/filepath"
	"time"

	"github.com/forest-guardian/wqindex/internal/batch"
	"github.com/forest-guardian/wqindex/internal/cache"
	"github.com/forest-guardian/wqindex/internal/notification"
	"github.com/forest-guardian/wqindex/internal/product"
	"github.com/forest-guardian/wqindex/internal/properties"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var batchFlags struct {
	manifest  string
	outputDir string
	report    string
	workers   int
	noCache   bool
	maxAge    time.Duration
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Build the L3 products listed in a CSV manifest",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		jobs, err := batch.ReadManifest(batchFlags.manifest)
		if err != nil {
			return err
		}

		outputDir := batchFlags.outputDir
		if outputDir == "" {
			outputDir = properties.OutputDir()
		}

		builder := product.NewBuilder(registry, product.WithLogger(logger))
		opts := []batch.Option{
			batch.WithLogger(logger),
			batch.WithNotifier(notification.NewDiscord(properties.DiscordNotificationUrl())),
		}
		if batchFlags.workers > 0 {
			opts = append(opts, batch.WithWorkers(batchFlags.workers))
		}
		if !batchFlags.noCache {
			dir := filepath.Join(properties.CacheDir(), "l3")
			opts = append(opts, batch.WithCache(cache.NewFileCache[[]batch.ReportRow](dir, cache.WithMaxAge(batchFlags.maxAge))))
		}

		report, runErr := batch.NewRunner(builder, outputDir, opts...).Run(cmd.Context(), jobs)
		if runErr != nil && !errors.Is(runErr, batch.ErrAllJobsFailed) {
			return runErr
		}

		reportPath := batchFlags.report
		if reportPath == "" {
			reportPath = filepath.Join(outputDir, "report.csv")
		}
		if err := batch.WriteReport(reportPath, report); err != nil {
			return err
		}
		logger.Info("Report written", zap.String("path", reportPath), zap.Int("rows", len(report)))
		return runErr
	},
}

func init() {
	batchCmd.Flags().StringVarP(&batchFlags.manifest, "manifest", "m", "", "CSV manifest (required)")
	batchCmd.Flags().StringVarP(&batchFlags.outputDir, "output-dir", "o", "", "Output directory (default: $OUTPUT_DIR)")
	batchCmd.Flags().StringVar(&batchFlags.report, "report", "", "CSV report path (default: <output-dir>/report.csv)")
	batchCmd.Flags().IntVarP(&batchFlags.workers, "workers", "w", 0, "Parallel jobs (default: $WORKERS or 4)")
	batchCmd.Flags().BoolVar(&batchFlags.noCache, "no-cache", false, "Rebuild every job")
	batchCmd.Flags().DurationVar(&batchFlags.maxAge, "max-age", 0, "Rebuild jobs whose cached summary is older, e.g. 72h (default: no expiry)")
	batchCmd.MarkFlagRequired("manifest")
}
