// Package cli wires the engine into a command that translates a page
// end to end: load, parse, run a session while stepping the viewport
// through the document, then write the bilingual result.
package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"biline/internal/classify"
	"biline/internal/config"
	"biline/internal/export"
	"biline/internal/fetch"
	"biline/internal/glossary"
	"biline/internal/logging"
	"biline/internal/pipeline"
	"biline/internal/render"
	"biline/internal/session"
	"biline/internal/translate"
	"biline/internal/tree"
	"biline/internal/version"
	"biline/internal/visibility"
	"biline/internal/watch"
)

type flags struct {
	configPath  string
	provider    string
	endpoint    string
	model       string
	apiKey      string
	source      string
	target      string
	style       string
	prompt      string
	glossary    string
	outPath     string
	outMarkdown string
	viewportH   float64
	pollEvery   time.Duration
	showVersion bool
}

func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:   "biline [flags] <url-or-file>",
		Short: "Bilingual page translation engine",
		Long: `biline discovers translatable text in an HTML document and drives it
through a translation backend, injecting translations next to the
originals without reflowing the page.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.showVersion {
				fmt.Fprintln(stdout, version.String())
				return nil
			}
			if len(args) != 1 {
				return fmt.Errorf("exactly one URL or file path is required")
			}
			return run(cmd.Context(), f, args[0], stdout, stderr)
		},
	}

	cmd.Flags().StringVar(&f.configPath, "config", "", "config file path")
	cmd.Flags().StringVar(&f.provider, "provider", "", "translation provider: openai or google")
	cmd.Flags().StringVar(&f.endpoint, "endpoint", "", "override backend endpoint (OpenAI-compatible or local server)")
	cmd.Flags().StringVar(&f.model, "model", "", "model name for OpenAI-compatible providers")
	cmd.Flags().StringVar(&f.apiKey, "api-key", "", "backend credential (default: OPENAI_API_KEY)")
	cmd.Flags().StringVar(&f.source, "source", "", "source language (default: auto)")
	cmd.Flags().StringVarP(&f.target, "target", "t", "", "target language")
	cmd.Flags().StringVar(&f.style, "style", "", "style hint: accurate, fluent or creative")
	cmd.Flags().StringVar(&f.prompt, "prompt", "", "custom instruction appended to the translation prompt")
	cmd.Flags().StringVar(&f.glossary, "glossary", "", "path to glossary JSON map")
	cmd.Flags().StringVarP(&f.outPath, "out", "o", "", "write translated HTML to file (default: stdout)")
	cmd.Flags().StringVar(&f.outMarkdown, "out-markdown", "", "also write a bilingual markdown export")
	cmd.Flags().Float64Var(&f.viewportH, "viewport-height", 800, "simulated viewport height")
	cmd.Flags().DurationVar(&f.pollEvery, "poll", 50*time.Millisecond, "session poll interval")
	cmd.Flags().BoolVar(&f.showVersion, "version", false, "print version and exit")

	return cmd
}

// Run is the entry point used by main and the e2e tests.
func Run(args []string, stdout, stderr io.Writer) error {
	cmd := NewRootCommand(stdout, stderr)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return cmd.ExecuteContext(ctx)
}

func run(ctx context.Context, f *flags, source string, stdout, stderr io.Writer) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	applyFlagOverrides(cfg, f)
	logging.Setup(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	log := logging.Component("cli")

	glossaryMap, err := glossary.Load(f.glossary)
	if err != nil {
		return err
	}

	rawHTML, err := loadSource(ctx, cfg, source)
	if err != nil {
		return err
	}

	doc, err := tree.ParseString(rawHTML, tree.Viewport{Top: 0, Height: f.viewportH})
	if err != nil {
		return err
	}

	httpClient := &http.Client{Timeout: cfg.Translate.Timeout}
	client := translate.NewBreaker(translate.ForProvider(cfg.Translate.Provider, httpClient))

	var mu sync.Mutex
	var terminal string
	controller := session.NewController(doc, client, sessionOptions(cfg, func(e session.Event) {
		switch e.Type {
		case session.EventProgress:
			fmt.Fprintf(stderr, "translated %d blocks...\n", e.Count)
		case session.EventError:
			if e.Terminal {
				mu.Lock()
				terminal = e.Message
				mu.Unlock()
			}
		}
	}), logging.Component("session"))

	if err := controller.Start(translateConfig(cfg, glossaryMap)); err != nil {
		return err
	}

	if err := drive(ctx, controller, doc, f); err != nil {
		_ = controller.Stop()
		return err
	}
	if err := controller.Stop(); err != nil {
		return err
	}
	mu.Lock()
	fatal := terminal
	mu.Unlock()
	if fatal != "" {
		return fmt.Errorf("translation backend unavailable: %s", fatal)
	}

	status := controller.Status()
	log.WithField("translated", status.TranslatedCount).Info("session finished")
	fmt.Fprintf(stderr, "Done: %d blocks translated\n", status.TranslatedCount)

	return writeOutputs(doc, f, stdout)
}

// drive steps the simulated viewport through the document, letting the
// scroll watcher pull deferred blocks in, until everything discovered
// has settled.
func drive(ctx context.Context, c *session.Controller, doc *tree.HTMLTree, f *flags) error {
	step := f.viewportH * 0.75
	deadlineIdle := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.pollEvery):
		}

		if !c.Status().Active {
			// Terminated by a fatal backend failure.
			return nil
		}
		if c.Backlog() > 0 || c.InFlight() > 0 {
			deadlineIdle = 0
			continue
		}

		vp := doc.Viewport()
		if vp.Bottom() < doc.Height() {
			doc.Scroll(vp.Top + step)
			deadlineIdle = 0
			continue
		}
		if c.PendingVisibility() > 0 {
			doc.Scroll(vp.Top + step)
			deadlineIdle = 0
			continue
		}

		// Idle at the bottom: give the debounced watchers a few polls
		// to flush before declaring the run finished.
		deadlineIdle++
		if deadlineIdle >= 5 {
			return nil
		}
	}
}

func loadSource(ctx context.Context, cfg *config.Config, source string) (string, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		httpClient := &http.Client{Timeout: cfg.Translate.Timeout}
		page, err := fetch.Load(ctx, httpClient, source)
		if err != nil {
			return "", err
		}
		return page.HTML, nil
	}
	raw, err := os.ReadFile(source)
	if err != nil {
		return "", fmt.Errorf("read input file: %w", err)
	}
	return string(raw), nil
}

func writeOutputs(doc *tree.HTMLTree, f *flags, stdout io.Writer) error {
	rendered, err := doc.HTML()
	if err != nil {
		return err
	}

	var errs error
	if f.outPath == "" {
		_, werr := io.WriteString(stdout, rendered)
		errs = multierr.Append(errs, werr)
	} else if werr := os.WriteFile(f.outPath, []byte(rendered), 0o644); werr != nil {
		errs = multierr.Append(errs, fmt.Errorf("write HTML output: %w", werr))
	}

	if f.outMarkdown != "" {
		md, merr := export.Markdown(doc)
		if merr != nil {
			errs = multierr.Append(errs, merr)
		} else if werr := os.WriteFile(f.outMarkdown, []byte(md), 0o644); werr != nil {
			errs = multierr.Append(errs, fmt.Errorf("write markdown output: %w", werr))
		}
	}
	return errs
}

func applyFlagOverrides(cfg *config.Config, f *flags) {
	if f.provider != "" {
		cfg.Translate.Provider = f.provider
	}
	if f.endpoint != "" {
		cfg.Translate.Endpoint = f.endpoint
	}
	if f.model != "" {
		cfg.Translate.Model = f.model
	}
	if f.apiKey != "" {
		cfg.Translate.APIKey = f.apiKey
	}
	if f.source != "" {
		cfg.Translate.SourceLang = f.source
	}
	if f.target != "" {
		cfg.Translate.TargetLang = f.target
	}
	if f.style != "" {
		cfg.Translate.Style = f.style
	}
	if f.prompt != "" {
		cfg.Translate.CustomPrompt = f.prompt
	}
}

func translateConfig(cfg *config.Config, glossaryMap map[string]string) translate.Config {
	return translate.Config{
		SourceLang:   cfg.Translate.SourceLang,
		TargetLang:   cfg.Translate.TargetLang,
		Style:        translate.Style(cfg.Translate.Style),
		CustomPrompt: cfg.Translate.CustomPrompt,
		Glossary:     glossaryMap,
		Provider:     cfg.Translate.Provider,
		Endpoint:     cfg.Translate.Endpoint,
		Model:        cfg.Translate.Model,
		APIKey:       cfg.Translate.APIKey,
		Timeout:      cfg.Translate.Timeout,
	}
}

func sessionOptions(cfg *config.Config, notify func(session.Event)) session.Options {
	return session.Options{
		Classifier: classify.Options{
			MinLength:  cfg.Discovery.MinLength,
			MaxLength:  cfg.Discovery.MaxLength,
			TargetLang: cfg.Translate.TargetLang,
			AutoDetect: cfg.Discovery.AutoDetect,
		},
		Visibility: visibility.Options{
			AboveRatio: cfg.Discovery.AboveRatio,
			BelowRatio: cfg.Discovery.BelowRatio,
		},
		Render: render.Options{
			TranslationOnly: cfg.Render.TranslationOnly,
		},
		Dark:          cfg.Render.Dark,
		QueueCapacity: cfg.Pipeline.QueueCapacity,
		MaxConcurrent: cfg.Pipeline.MaxConcurrent,
		Dispatch: pipeline.Options{
			BatchSize:  cfg.Pipeline.BatchSize,
			MaxRetries: cfg.Pipeline.MaxRetries,
			BaseDelay:  cfg.Pipeline.RetryDelay,
		},
		MutationDebounce: cfg.Watch.MutationDebounce,
		ScrollShort:      cfg.Watch.ScrollShort,
		ScrollLong:       cfg.Watch.ScrollLong,
		ScrollThreshold:  cfg.Watch.ScrollThreshold,
		Rescan: watch.RescanOptions{
			Min:     cfg.Watch.RescanMin,
			Max:     cfg.Watch.RescanMax,
			HardCap: cfg.Watch.BacklogHardCap,
		},
		Notify: notify,
	}
}
