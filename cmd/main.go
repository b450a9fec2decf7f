package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/airbusgeo/godal"
	"github.com/fatih/color"
	"github.com/forest-guardian/wqindex/internal/algorithm"
	"github.com/forest-guardian/wqindex/internal/calibration"
	"github.com/forest-guardian/wqindex/internal/config"
	"github.com/forest-guardian/wqindex/internal/properties"
	"github.com/forest-guardian/wqindex/internal/utils"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	verbose bool

	logger   *zap.Logger
	registry *algorithm.Registry
)

var rootCmd = &cobra.Command{
	Use:     properties.ToolName,
	Short:   "Water quality and land indices from satellite band extracts",
	Version: properties.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load .env file: %w", err)
		}

		zapConfig := zap.NewProductionConfig()
		if verbose {
			zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapConfig.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		registry, err = newRegistry(properties.WorkspacePath())
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	SilenceUsage: true,
}

// newRegistry loads the built-in algorithm tables merged with the user
// workspace, when there is one.
func newRegistry(workspace string) (*algorithm.Registry, error) {
	base, err := config.Default()
	if err != nil {
		return nil, err
	}
	catalog, skipped, err := config.LoadWorkspace(base, workspace)
	if err != nil {
		return nil, err
	}
	for _, name := range skipped {
		logger.Warn("User algorithm shadows a built-in one and is ignored", zap.String("algorithm", name))
	}

	var opts []calibration.Option
	if workspace != "" {
		opts = append(opts, calibration.WithUserDir(filepath.Join(workspace, "resources", "algo_calibration")))
	}
	return algorithm.NewRegistry(algorithm.Env{Catalog: catalog, Calibrations: calibration.NewStore(opts...)}), nil
}

var algorithmsCmd = &cobra.Command{
	Use:   "algorithms",
	Short: "List the available algorithms",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog := registry.Catalog()
		for _, name := range catalog.Names() {
			d, err := catalog.Descriptor(name)
			if err != nil {
				return err
			}
			fmt.Printf("%-18s %s\n", name, strings.Join(d.LongName, ", "))
			if listSatellites {
				fmt.Printf("%-18s %s\n", "", strings.Join(d.Satellites(), " "))
			}
		}
		return nil
	},
}

var (
	listSatellites bool

	algoName    string
	productType string
	band        string
	calib       string
	design      string
)

var bandsCmd = &cobra.Command{
	Use:   "bands",
	Short: "Print the bands an algorithm needs for a product type",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		bands, err := registry.Catalog().RequestedBands(algoName, productType)
		if err != nil {
			return err
		}
		fmt.Println(strings.Join(bands, " "))
		return nil
	},
}

var calibrationCmd = &cobra.Command{
	Use:   "calibration",
	Short: "Print the resolved parameters of an algorithm",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		algo, err := registry.New(algoName, algorithm.Options{
			ProductType: productType,
			Band:        band,
			Calibration: calibration.ParseRef(calib),
			Design:      design,
		})
		if err != nil {
			return err
		}
		meta := algo.Meta()
		fmt.Printf("%-16s %s\n", "bands", strings.Join(algo.RequestedBands(), " "))
		for _, k := range utils.SortedKeys(meta) {
			fmt.Printf("%-16s %v\n", k, meta[k])
		}
		return nil
	},
}

var calibrationsCmd = &cobra.Command{
	Use:   "calibrations",
	Short: "List the calibrations available for an algorithm",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := registry.Catalog().Descriptor(algoName); err != nil {
			return err
		}
		summaries, err := registry.Calibrations().Summaries(algoName)
		if err != nil {
			return err
		}
		for _, sum := range summaries {
			fmt.Printf("%-18s limit %v\n", sum.Name, sum.ValidityLimit)
			for _, sat := range sum.Satellites {
				if bands, ok := sum.Bands[sat]; ok {
					fmt.Printf("  %-16s %s\n", sat, strings.Join(bands, " "))
					continue
				}
				fmt.Printf("  %s\n", sat)
			}
		}
		return nil
	},
}

var checkRegistrationCmd = &cobra.Command{
	Use:   "check-registration",
	Short: "Report algorithms configured without implementation and the reverse",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		missingConfig, missingImpl := registry.Check()
		for _, name := range missingImpl {
			color.Red("%s is configured but not implemented", name)
		}
		for _, name := range missingConfig {
			color.Red("%s is implemented but not configured", name)
		}
		if len(missingConfig)+len(missingImpl) > 0 {
			return fmt.Errorf("%d algorithm(s) out of sync", len(missingConfig)+len(missingImpl))
		}
		color.Green("%d algorithms registered", len(registry.Names()))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	for _, cmd := range []*cobra.Command{bandsCmd, calibrationCmd} {
		cmd.Flags().StringVarP(&algoName, "algo", "a", "", "Algorithm name (required)")
		cmd.Flags().StringVarP(&productType, "product-type", "t", "", "Product type, e.g. S2_GRS (required)")
		cmd.MarkFlagRequired("algo")
		cmd.MarkFlagRequired("product-type")
	}
	algorithmsCmd.Flags().BoolVarP(&listSatellites, "satellites", "s", false, "Also print the satellite keys of each algorithm")
	calibrationsCmd.Flags().StringVarP(&algoName, "algo", "a", "", "Algorithm name (required)")
	calibrationsCmd.MarkFlagRequired("algo")
	calibrationCmd.Flags().StringVar(&band, "band", "", "Band override")
	calibrationCmd.Flags().StringVar(&calib, "calib", "", "Calibration name or file")
	calibrationCmd.Flags().StringVar(&design, "design", "", "Algorithm design")

	rootCmd.AddCommand(algorithmsCmd)
	rootCmd.AddCommand(bandsCmd)
	rootCmd.AddCommand(calibrationCmd)
	rootCmd.AddCommand(calibrationsCmd)
	rootCmd.AddCommand(checkRegistrationCmd)
	rootCmd.AddCommand(createL3Cmd)
	rootCmd.AddCommand(batchCmd)
}

func main() {
	godal.RegisterAll()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
