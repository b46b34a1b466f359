package main

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"speakersentiment/internal/app"
	"speakersentiment/internal/config"
	"speakersentiment/internal/logger"
	"speakersentiment/internal/pipeline"
	"speakersentiment/internal/report"
)

// buildApplication loads configuration, applies flag overrides and wires
// the application. Logs go to the command's stderr.
func buildApplication(cmd *cobra.Command, opts *options) (*app.Application, *config.Configuration, error) {
	cfg, err := app.LoadConfiguration(opts.configPath)
	if err != nil {
		return nil, nil, err
	}

	for flag, key := range flagKeys {
		f := cmd.Flags().Lookup(flag)
		if f == nil || !f.Changed {
			continue
		}
		cfg.Set(key, f.Value.String())
	}
	if f := cmd.Flags().Lookup("transcript-file"); f != nil && f.Changed {
		cfg.Set("transcriber.backend", config.TranscriberStatic)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:  cfg.GetLogLevel(),
		Format: cfg.GetLogFormat(),
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	application, err := app.NewApplicationWithConfig(cfg, nil, zapLogger)
	if err != nil {
		zapLogger.Error("failed to create application", zap.Error(err))
		return nil, nil, err
	}
	return application, cfg, nil
}

// reportFailure prints the user-facing description of err
func reportFailure(cmd *cobra.Command, err error) error {
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", pipeline.Describe(err))
	return err
}

func writeOutputs(cmd *cobra.Command, cfg *config.Configuration, opts *options, result *pipeline.Result) error {
	stdout := cmd.OutOrStdout()

	csvPath := opts.out
	if csvPath == "" {
		csvPath = filepath.Join(cfg.GetOutputDir(), report.DefaultCSVFileName)
	}

	if csvPath == "-" {
		if err := result.WriteCSV(stdout); err != nil {
			return err
		}
		return nil
	}

	if err := writeFile(csvPath, result.WriteCSV); err != nil {
		return fmt.Errorf("failed to write CSV: %w", err)
	}

	if opts.chart != "" {
		err := writeFile(opts.chart, func(w io.Writer) error {
			return result.WriteChart(w, report.DefaultChartOptions())
		})
		if err != nil {
			return fmt.Errorf("failed to write chart: %w", err)
		}
	}

	printSummary(stdout, result)
	fmt.Fprintf(stdout, "\nWrote %d utterances to %s\n", len(result.Scored), csvPath)
	if opts.chart != "" {
		fmt.Fprintf(stdout, "Wrote chart to %s\n", opts.chart)
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printSummary(w io.Writer, result *pipeline.Result) {
	fmt.Fprintf(w, "Utterances: %d  Skipped lines: %d", len(result.Scored), result.Skipped)
	if result.ScoringFailures > 0 {
		fmt.Fprintf(w, "  Unscored: %d", result.ScoringFailures)
	}
	fmt.Fprintln(w)

	if mean := result.OverallMean(); !math.IsNaN(mean) {
		fmt.Fprintf(w, "Overall mean sentiment: %+.3f\n", mean)
	}
	fmt.Fprintln(w)

	_ = report.RenderChartText(w, result.Summary, 20)
}
