package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"speakersentiment/internal/report"
	"speakersentiment/internal/transcriber"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

type options struct {
	configPath string
	out        string
	chart      string
}

// flagKeys maps command-line flags to the configuration keys they override
var flagKeys = map[string]string{
	"language":        "analysis.language",
	"speakers":        "analysis.num_speakers",
	"strict-timing":   "analysis.strict_timing",
	"tolerant":        "sentiment.tolerant",
	"backend":         "sentiment.backend",
	"transcriber-url": "transcriber.url",
	"transcript-file": "transcriber.transcript_file",
	"addr":            "server.addr",
	"log-level":       "log.level",
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "speakersentiment",
		Short:         "Per-speaker sentiment analysis of recorded conversations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (defaults to $CONFIG_PATH, then SENTIMENT_* environment variables)")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		newAnalyzeCommand(opts),
		newParseCommand(opts),
		newServeCommand(opts),
		newVersionCommand(),
	)
	return root
}

func addAnalysisFlags(cmd *cobra.Command, opts *options) {
	cmd.Flags().StringVar(&opts.out, "out", "", "CSV output path (default <output.dir>/"+report.DefaultCSVFileName+", - for stdout)")
	cmd.Flags().StringVar(&opts.chart, "chart", "", "write the per-speaker chart as SVG to this path")
	cmd.Flags().Bool("tolerant", false, "record unscorable utterances as missing instead of failing")
	cmd.Flags().Bool("strict-timing", false, "skip lines whose end time is before the start time")
	cmd.Flags().String("backend", "", "sentiment backend: lexicon or openai")
}

func newAnalyzeCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <audio.wav>",
		Short: "Transcribe a recording and score each speaker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, cfg, err := buildApplication(cmd, opts)
			if err != nil {
				return err
			}
			defer application.Shutdown()

			audio, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open audio file: %w", err)
			}
			defer audio.Close()

			result, err := application.Pipeline().AnalyzeAudio(cmd.Context(), transcriber.Request{
				Audio:       audio,
				FileName:    filepath.Base(args[0]),
				Language:    cfg.GetLanguage(),
				NumSpeakers: cfg.GetNumSpeakers(),
			})
			if err != nil {
				return reportFailure(cmd, err)
			}

			return writeOutputs(cmd, cfg, opts, result)
		},
	}
	cmd.Flags().String("language", "", "spoken language: english, spanish, french, german or italian")
	cmd.Flags().Int("speakers", 0, "expected number of speakers (1-10)")
	cmd.Flags().String("transcriber-url", "", "base URL of the diarizing transcription service")
	cmd.Flags().String("transcript-file", "", "replay this diarized transcript instead of calling the transcription service")
	addAnalysisFlags(cmd, opts)
	return cmd
}

func newParseCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse <transcript.txt|->",
		Short: "Score an existing diarized transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, cfg, err := buildApplication(cmd, opts)
			if err != nil {
				return err
			}
			defer application.Shutdown()

			var text []byte
			if args[0] == "-" {
				text, err = io.ReadAll(cmd.InOrStdin())
			} else {
				text, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("failed to read transcript: %w", err)
			}

			result, err := application.Pipeline().AnalyzeTranscript(cmd.Context(), string(text))
			if err != nil {
				return reportFailure(cmd, err)
			}

			return writeOutputs(cmd, cfg, opts, result)
		},
	}
	addAnalysisFlags(cmd, opts)
	return cmd
}

func newServeCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, _, err := buildApplication(cmd, opts)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := application.Run(ctx); err != nil {
				return err
			}
			return application.Shutdown()
		},
	}
	cmd.Flags().String("addr", "", "listen address (default server.addr)")
	cmd.Flags().String("transcriber-url", "", "base URL of the diarizing transcription service")
	cmd.Flags().String("transcript-file", "", "replay this diarized transcript instead of calling the transcription service")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "speakersentiment %s\n", version)
		},
	}
}
