// Package wizard provides an interactive form for assembling an export
// configuration without memorizing flags.
package wizard

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/retinalab/dcmexport/internal/config"
	"github.com/retinalab/dcmexport/internal/diag"
	"github.com/retinalab/dcmexport/internal/export"
)

var titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))

// NewCmd returns the wizard subcommand.
func NewCmd() *cobra.Command {
	var fromConfig string

	cmd := &cobra.Command{
		Use:   "wizard",
		Short: "Interactively build and run an export configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(fromConfig)
		},
	}
	cmd.Flags().StringVar(&fromConfig, "from", "", "Pre-fill the form from a YAML configuration file")
	return cmd
}

// Run shows the form, then either runs the export or saves the
// configuration, depending on what the user picked at the end.
func Run(fromConfig string) error {
	cfg := config.Default()
	if fromConfig != "" {
		loaded, err := config.Load(fromConfig)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	answers, err := collect(cfg)
	if err != nil {
		return err
	}
	cfg = answers.config

	fmt.Println(titleStyle.Render("dcmexport"))

	if answers.savePath != "" {
		if err := cfg.Save(answers.savePath); err != nil {
			return err
		}
		fmt.Printf("Configuration saved to '%s'\n", answers.savePath)
		if !answers.runNow {
			return nil
		}
	}
	if !answers.runNow {
		return nil
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	sink := diag.NewConsole(os.Stderr, cfg.Quiet)
	summary, err := export.Run(cfg, sink)
	if err != nil {
		return err
	}
	fmt.Printf("Processed %d, skipped %d, failed %d\n", summary.Processed, summary.Skipped, summary.Failed)
	return nil
}

// answers is the form's outcome.
type answers struct {
	config   config.Config
	runNow   bool
	savePath string
}

func collect(cfg config.Config) (answers, error) {
	var (
		tolerance = strconv.FormatFloat(cfg.Tolerance, 'f', -1, 64)
		jobs      = strconv.Itoa(cfg.Jobs)
		keep      []string
		runNow    = true
		save      = false
		savePath  = "dcmexport.yaml"
	)
	for _, r := range cfg.Keep {
		keep = append(keep, string(r))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Input directory").
				Description("Directory tree containing DICOM files").
				Value(&cfg.InputDir).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("input directory is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Output directory").
				Value(&cfg.OutputDir),
			huh.NewSelect[string]().
				Title("Image format").
				Options(huh.NewOptions(export.Formats()...)...).
				Value(&cfg.ImageFormat),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Group by acquisition time?").
				Description("Default grouping uses the frame-of-reference UID").
				Value(&cfg.Group),
			huh.NewInput().
				Title("Grouping tolerance (seconds)").
				Value(&tolerance).
				Validate(validFloat),
			huh.NewInput().
				Title("Parallel jobs").
				Description("0 uses every CPU core").
				Value(&jobs).
				Validate(validInt),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Mapping CSV").
				Description("Optional patient to anonymized key mapping").
				Value(&cfg.Mapping),
			huh.NewMultiSelect[string]().
				Title("Fields to keep").
				Options(
					huh.NewOption("patient key (p)", "p"),
					huh.NewOption("names (n)", "n"),
					huh.NewOption("date of birth (d)", "d"),
					huh.NewOption("year-only date of birth (D)", "D"),
					huh.NewOption("gender (g)", "g"),
				).
				Value(&keep),
			huh.NewConfirm().
				Title("Overwrite existing exports?").
				Value(&cfg.Overwrite),
			huh.NewConfirm().
				Title("Remove previous exports before processing?").
				Value(&cfg.Reset),
			huh.NewConfirm().
				Title("Quiet mode?").
				Value(&cfg.Quiet),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save this configuration to a file?").
				Value(&save),
			huh.NewConfirm().
				Title("Run the export now?").
				Value(&runNow),
		),
	)

	if err := form.Run(); err != nil {
		return answers{}, err
	}

	cfg.Tolerance, _ = strconv.ParseFloat(tolerance, 64)
	cfg.Jobs, _ = strconv.Atoi(jobs)
	cfg.Keep = strings.Join(keep, "")

	out := answers{config: cfg, runNow: runNow}
	if save {
		pathForm := huh.NewForm(huh.NewGroup(
			huh.NewInput().
				Title("Configuration file path").
				Value(&savePath),
		))
		if err := pathForm.Run(); err != nil {
			return answers{}, err
		}
		out.savePath = savePath
	}
	return out, nil
}

func validFloat(s string) error {
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return fmt.Errorf("enter a number")
	}
	return nil
}

func validInt(s string) error {
	if _, err := strconv.Atoi(s); err != nil {
		return fmt.Errorf("enter a whole number")
	}
	return nil
}
