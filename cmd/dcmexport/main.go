package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/retinalab/dcmexport/cmd/dcmexport/wizard"
	"github.com/retinalab/dcmexport/internal/config"
	"github.com/retinalab/dcmexport/internal/diag"
	"github.com/retinalab/dcmexport/internal/export"
)

// errUsage marks argument errors so main can map them to exit code 2.
var errUsage = errors.New("usage error")

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)

	err := root.Execute()
	if err == nil {
		return 0
	}
	if errors.Is(err, errUsage) {
		return 2
	}
	return 1
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		saveConfig string
		cfg        = config.Default()
	)

	cmd := &cobra.Command{
		Use:           "dcmexport INPUT_DIR",
		Short:         "Export de-identified images and metadata from ophthalmic DICOM files",
		Long:          "Process DICOM files in subfolders, extract images and metadata.",
		Version:       export.ToolVersionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("%w: expected exactly one INPUT_DIR argument", errUsage)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				applyFileConfig(cmd, &cfg, loaded)
			}
			cfg.InputDir = args[0]
			cfg.TolSet = cmd.Flags().Changed("tol")

			sink := diag.NewConsole(os.Stderr, cfg.Quiet)
			if err := cfg.Validate(); err != nil {
				sink.Errorf("%v", err)
				return err
			}

			if saveConfig != "" {
				if err := cfg.Save(saveConfig); err != nil {
					return err
				}
				sink.Infof("Configuration saved to '%s'", saveConfig)
			}

			summary, err := export.Run(cfg, sink)
			if err != nil {
				sink.Errorf("%v", err)
				return err
			}
			printSummary(sink, cfg, summary)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&cfg.ImageFormat, "image_format", "f", cfg.ImageFormat,
		fmt.Sprintf("Image format for extracted images (%s)", strings.Join(export.Formats(), ", ")))
	flags.StringVarP(&cfg.OutputDir, "output_dir", "o", cfg.OutputDir,
		"Output directory for extracted images and metadata")
	flags.BoolVarP(&cfg.Group, "group", "g", false,
		"Re-group DICOM files in a given folder by acquisition time")
	flags.Float64VarP(&cfg.Tolerance, "tol", "t", cfg.Tolerance,
		"Tolerance in seconds for time grouping; only used with --group")
	flags.IntVarP(&cfg.Jobs, "n_jobs", "j", cfg.Jobs, "Number of parallel jobs")
	flags.StringVarP(&cfg.Mapping, "mapping", "m", "",
		"Path to CSV containing the patient to anonymized key mapping")
	flags.StringVarP(&cfg.Keep, "keep", "k", "",
		"Keep the specified fields (p: patient key, n: names, d: date of birth, D: year-only DOB, g: gender)")
	flags.BoolVarP(&cfg.Overwrite, "overwrite", "w", false, "Overwrite existing exports if found")
	flags.BoolVarP(&cfg.Reset, "reset", "r", false, "Remove previous exports from the output directory before processing")
	flags.BoolVarP(&cfg.Quiet, "quiet", "q", false, "Silence verbosity")
	flags.StringVar(&configPath, "config", "", "Load options from a YAML configuration file")
	flags.StringVar(&saveConfig, "save-config", "", "Write the effective options to a YAML file")
	flags.BoolP("version", "V", false, "Prints app version")

	cmd.AddCommand(wizard.NewCmd())
	return cmd
}

// applyFileConfig merges a loaded configuration file under any flags the
// user set explicitly on the command line.
func applyFileConfig(cmd *cobra.Command, cfg *config.Config, loaded config.Config) {
	changed := cmd.Flags().Changed
	if !changed("image_format") {
		cfg.ImageFormat = loaded.ImageFormat
	}
	if !changed("output_dir") {
		cfg.OutputDir = loaded.OutputDir
	}
	if !changed("group") {
		cfg.Group = loaded.Group
	}
	if !changed("tol") {
		cfg.Tolerance = loaded.Tolerance
	}
	if !changed("n_jobs") {
		cfg.Jobs = loaded.Jobs
	}
	if !changed("mapping") {
		cfg.Mapping = loaded.Mapping
	}
	if !changed("keep") {
		cfg.Keep = loaded.Keep
	}
	if !changed("overwrite") {
		cfg.Overwrite = loaded.Overwrite
	}
	if !changed("reset") {
		cfg.Reset = loaded.Reset
	}
	if !changed("quiet") {
		cfg.Quiet = loaded.Quiet
	}
}

func printSummary(sink diag.Sink, cfg config.Config, summary *export.Summary) {
	if summary.FilesFound == 0 {
		sink.Warnf("No DICOM files found in %s", cfg.InputDir)
		return
	}

	outDir := summary.OutputDir
	if abs, err := filepath.Abs(outDir); err == nil {
		outDir = abs
	}

	switch {
	case summary.Processed > 0 && summary.Skipped == 0:
		sink.Infof("Processed %d DICOM groups (%s)", summary.Processed, humanize.Bytes(uint64(summary.Bytes)))
		sink.Infof("Saved to '%s'", outDir)
	case summary.Skipped > 0 && summary.Processed == 0:
		sink.Infof("Skipped %d DICOM groups in folder '%s'", summary.Skipped, outDir)
	case summary.Processed > 0 && summary.Skipped > 0:
		sink.Infof("Processed %d DICOM groups (%s)", summary.Processed, humanize.Bytes(uint64(summary.Bytes)))
		sink.Infof("Skipped %d DICOM groups", summary.Skipped)
		sink.Infof("See '%s'", outDir)
	}
	if summary.Failed > 0 {
		sink.Warnf("%d groups failed to export", summary.Failed)
	}
}
