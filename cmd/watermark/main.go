// Package main provides the CLI entry point for watermark.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	"github.com/ideamans/go-l10n"

	"github.com/user/watermark/pkg/adapters/logger"
	"github.com/user/watermark/pkg/adapters/osfilesystem"
	"github.com/user/watermark/pkg/batch"
	"github.com/user/watermark/pkg/config"
	"github.com/user/watermark/pkg/ports"
	"github.com/user/watermark/pkg/stages/composite"
	"github.com/user/watermark/pkg/summarizer"
	"github.com/user/watermark/pkg/watermark"
)

// CLI defines the command-line interface. Watermarking is the default
// command so the tool can be invoked as `watermark <input> <text>`.
type CLI struct {
	Apply   ApplyCmd   `cmd:"" default:"withargs" help:"Watermark an image, a PDF or a directory of images."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

// ApplyCmd defines the watermark command.
type ApplyCmd struct {
	// Arguments
	Input       string `arg:"" help:"Image, PDF or directory to watermark."`
	Text        string `arg:"" optional:"" help:"Watermark text (may come from --config)."`
	Compression *int   `arg:"" optional:"" help:"JPEG quality 1-100 (default: 90)."`

	// Config file
	Config string `type:"existingfile" help:"YAML configuration file."`

	// Watermark
	SpaceScale *float64 `short:"s" help:"Spacing between watermarks relative to text size (default: 1.5)."`
	TextScale  *float64 `help:"Text height relative to image height (default: 0.05)."`
	Pattern    *string  `short:"p" enum:"diagonal,horizontal,vertical,random,cross-diagonal" help:"Placement pattern (diagonal, horizontal, vertical, random, cross-diagonal)."`
	Color      *string  `help:"Watermark color (hex, e.g., #808080)."`
	Opacity    *int     `help:"Watermark opacity (0-255, default: 150)."`
	Seed       *uint64  `help:"Seed for the random pattern."`
	RandomSeed bool     `help:"Use a fresh seed for the random pattern."`
	Font       *string  `type:"existingfile" help:"TrueType font file (default: Go Regular)."`

	// Output
	Recursive bool   `short:"r" help:"Process subdirectories."`
	PDF       bool   `help:"Write PDF documents instead of images."`
	Summary   string `help:"Write a run summary to file (Markdown format)."`

	// Performance
	GPU         *string `enum:"auto,on,off" help:"GPU compositing (auto, on, off)."`
	GPUFallback bool    `help:"Fall back to CPU when --gpu=on and no device is available."`
	Threads     *string `help:"CPU threads per image (auto or a number)."`
	Concurrency *int    `help:"Files processed at once (0 = one per core)."`

	// Debug
	Debug    bool    `short:"d" help:"Enable debug output."`
	DebugDir *string `help:"Directory for debug output (default: ./debug)."`

	// Logging
	LogLevel *string `short:"l" enum:"debug,info,warn,error" help:"Log level (debug, info, warn, error)."`
	Quiet    bool    `short:"Q" help:"Suppress all log output."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

var version = "dev"

func main() {
	cli := CLI{}

	ctx := kong.Parse(&cli,
		kong.Name("watermark"),
		kong.Description(l10n.T("Tile a text watermark over images and PDF documents.")),
		kong.UsageOnError(),
	)

	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}

// Run executes the watermark command.
func (cmd *ApplyCmd) Run() error {
	started := time.Now()

	cfg, err := cmd.buildConfig()
	if err != nil {
		return err
	}

	runID := uuid.NewString()

	// Create logger
	var log ports.Logger
	if cmd.Quiet {
		log = logger.NewNoop()
	} else {
		log = logger.NewConsole(ports.ParseLogLevel(cfg.LogLevel)).WithRunID(runID)
	}

	spec, err := cfg.Spec()
	if err != nil {
		return err
	}
	directive, err := composite.ParseDirective(cfg.GPU)
	if err != nil {
		return err
	}

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			log.Warn(l10n.T("Interrupted, finishing files in progress..."))
			cancel()
		case <-ctx.Done():
		}
	}()

	engine := watermark.New(watermark.Options{
		GPU:           directive,
		AllowFallback: cfg.GPUFallback,
		Threads:       cfg.Threads,
		Concurrency:   cfg.Concurrency,
		Quality:       cfg.Quality,
		PDF:           cfg.PDF,
		Recursive:     cfg.Recursive,
		Debug:         cfg.Debug,
		DebugDir:      cfg.DebugDir,
	}, log)
	defer engine.Close()

	log.Info(l10n.F("Watermarking %s with %q (%s pattern)", cmd.Input, spec.Text, spec.Pattern))

	results, err := engine.Process(ctx, spec, cmd.Input)
	elapsed := time.Since(started)

	if cmd.Summary != "" && err == nil {
		summary := summarizer.NewBuilder().
			WithRunID(runID).
			WithInput(cmd.Input).
			WithSpec(spec).
			WithSettings(summarizer.Settings{
				GPU:         string(directive),
				Threads:     cfg.Threads,
				Concurrency: cfg.Concurrency,
				Quality:     cfg.Quality,
				PDF:         cfg.PDF,
				Recursive:   cfg.Recursive,
			}).
			WithResults(results).
			WithElapsed(elapsed).
			Build()
		formatter := summarizer.NewMarkdownFormatter(
			summarizer.WithTranslator(func(s string) string { return l10n.T(s) }),
			summarizer.WithVersion(version),
		)
		writer := summarizer.NewWriter(formatter, osfilesystem.New())
		if werr := writer.Write(cmd.Summary, summary); werr != nil {
			log.Warn(l10n.F("Failed to write summary: %s", werr.Error()))
		} else {
			log.Info(l10n.F("Summary saved to %s", cmd.Summary))
		}
	}

	if err != nil {
		return err
	}

	counts := batch.Count(results)
	log.Info(l10n.F("Done in %s: %d succeeded, %d failed, %d canceled",
		elapsed.Round(time.Millisecond).String(), counts.Succeeded, counts.Failed, counts.Canceled))

	switch {
	case ctx.Err() != nil && counts.Canceled > 0:
		return ctx.Err()
	case counts.Failed > 0:
		return errors.New(l10n.F("%d of %d files failed", counts.Failed, counts.Total))
	}
	return nil
}

// buildConfig layers the config file, the environment and the command
// line, then validates the result.
func (cmd *ApplyCmd) buildConfig() (config.Config, error) {
	cfg, err := config.Load(cmd.Config)
	if err != nil {
		return cfg, err
	}

	if cmd.Text != "" {
		cfg.Text = cmd.Text
	}
	if cmd.Compression != nil {
		cfg.Quality = *cmd.Compression
	}
	if cmd.SpaceScale != nil {
		cfg.SpaceScale = *cmd.SpaceScale
	}
	if cmd.TextScale != nil {
		cfg.TextScale = *cmd.TextScale
	}
	if cmd.Pattern != nil {
		cfg.Pattern = *cmd.Pattern
	}
	if cmd.Color != nil {
		cfg.Color = *cmd.Color
	}
	if cmd.Opacity != nil {
		cfg.Opacity = *cmd.Opacity
	}
	if cmd.Seed != nil {
		cfg.Seed = *cmd.Seed
	}
	if cmd.RandomSeed {
		cfg.Seed = watermark.RandomSeed()
	}
	if cmd.Font != nil {
		cfg.Font = *cmd.Font
	}
	if cmd.Recursive {
		cfg.Recursive = true
	}
	if cmd.PDF {
		cfg.PDF = true
	}
	if cmd.GPU != nil {
		cfg.GPU = *cmd.GPU
	}
	if cmd.GPUFallback {
		cfg.GPUFallback = true
	}
	if cmd.Threads != nil {
		threads, err := parseThreads(*cmd.Threads)
		if err != nil {
			return cfg, err
		}
		cfg.Threads = threads
	}
	if cmd.Concurrency != nil {
		cfg.Concurrency = *cmd.Concurrency
	}
	if cmd.Debug {
		cfg.Debug = true
	}
	if cmd.DebugDir != nil {
		cfg.DebugDir = filepath.Clean(*cmd.DebugDir)
	}
	if cmd.LogLevel != nil {
		cfg.LogLevel = *cmd.LogLevel
	}

	if cfg.Text == "" {
		return cfg, errors.New(l10n.T("Watermark text is required"))
	}
	return cfg, cfg.Validate()
}

// parseThreads accepts "auto" or a non-negative count.
func parseThreads(s string) (int, error) {
	if strings.EqualFold(s, "auto") || s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s: %q", l10n.T("Invalid thread count"), s)
	}
	return n, nil
}

// Run executes the version command.
func (cmd *VersionCmd) Run() error {
	fmt.Println(l10n.F("watermark version %s", version))
	return nil
}
