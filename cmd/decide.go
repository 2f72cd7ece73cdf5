// File: cmd/decide.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deskmind/api/schemas"
	"github.com/xkilldash9x/deskmind/internal/config"
	"github.com/xkilldash9x/deskmind/internal/events"
	"github.com/xkilldash9x/deskmind/internal/identity"
	"github.com/xkilldash9x/deskmind/internal/llmclient"
	"github.com/xkilldash9x/deskmind/internal/observability"
	"github.com/xkilldash9x/deskmind/internal/pipeline"
)

// llmProvider creates the inference client. Tests inject a mock client
// through it instead of talking to a live provider.
type llmProvider interface {
	Create(ctx context.Context, cfg *config.Config) (schemas.LLMClient, error)
}

type defaultLLMProvider struct{}

func (defaultLLMProvider) Create(ctx context.Context, cfg *config.Config) (schemas.LLMClient, error) {
	return llmclient.NewClient(ctx, cfg.Agent, observability.GetLogger())
}

// batchEntry is one request in a --batch file.
type batchEntry struct {
	Text        string              `json:"text"`
	Environment schemas.Environment `json:"environment"`
}

// decisionOutput is what --output json prints per request.
type decisionOutput struct {
	Decision schemas.Decision `json:"decision"`
	Response schemas.Response `json:"response"`
}

type decideOptions struct {
	envPath     string
	windowsPath string
	batchPath   string
	output      string
	trace       bool
}

func newDecideCmd(provider llmProvider, session *Session) *cobra.Command {
	opts := &decideOptions{}

	decideCmd := &cobra.Command{
		Use:   "decide [text]",
		Short: "Turn a natural-language request into an automation decision",
		Long: `Runs a request through segmentation, intent classification, routing,
tool resolution and prerequisite validation, then prints the resulting
decision and the user-facing response. No action is executed.`,
		Example: `  deskmind decide "open notepad and type hello" --env env.json --windows windows.json
  deskmind decide --batch requests.json --output json`,
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.batchPath == "" && len(args) == 0 {
				return fmt.Errorf("requires request text or --batch")
			}
			if opts.batchPath != "" && len(args) > 0 {
				return fmt.Errorf("request text and --batch are mutually exclusive")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return runDecide(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg, provider, session, opts, strings.Join(args, " "))
		},
	}

	decideCmd.Flags().StringVar(&opts.envPath, "env", "", "JSON file with the environment snapshot (active window, running processes, lock state)")
	decideCmd.Flags().StringVar(&opts.windowsPath, "windows", "", "JSON file listing live windows, used to resolve application targets")
	decideCmd.Flags().StringVar(&opts.batchPath, "batch", "", "JSON file with an array of {text, environment} requests processed concurrently")
	decideCmd.Flags().StringVarP(&opts.output, "output", "o", "text", "output format: text or json")
	decideCmd.Flags().BoolVar(&opts.trace, "trace", false, "print pipeline events to stderr")
	return decideCmd
}

func runDecide(ctx context.Context, out, errOut io.Writer, cfg *config.Config, provider llmProvider, session *Session, opts *decideOptions, text string) error {
	logger := observability.GetLogger()
	if opts.output != "text" && opts.output != "json" {
		return fmt.Errorf("unsupported output format %q", opts.output)
	}

	requests, err := loadRequests(opts, text)
	if err != nil {
		return err
	}

	var (
		windows  schemas.WindowSource
		snapshot []schemas.WindowSnapshot
	)
	if opts.windowsPath != "" {
		if err := readJSONFile(opts.windowsPath, &snapshot); err != nil {
			return err
		}
		windows = identity.NewStaticSource(snapshot...)
	}

	caps, err := loadCapabilities(cfg.Capabilities, logger)
	if err != nil {
		return err
	}

	llm, err := provider.Create(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create inference client: %w", err)
	}
	defer func() {
		if err := llm.Close(); err != nil {
			logger.Warn("Failed to close inference client", zap.Error(err))
		}
	}()

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics()
		stop := serveMetrics(cfg.Metrics, metrics, logger)
		defer stop()
	}

	bus := events.NewBus(logger, cfg.Events.BufferSize)
	defer bus.Shutdown()
	if opts.trace {
		stop := traceEvents(bus, errOut)
		defer stop()
	}

	// A one-shot run starts with no handles. In a session, handles seeded by
	// earlier snapshots are re-resolved against this one.
	var handles *identity.Registry
	if session != nil {
		handles = session.registry(cfg.Identity, logger)
	} else {
		handles = identity.NewRegistry(logger, cfg.Identity)
	}
	if n := seedHandles(handles, snapshot); n > 0 {
		logger.Debug("Tracking windows from snapshot", zap.Int("created", n), zap.Int("handles", handles.Len()))
	}
	p, err := pipeline.NewFromConfig(logger, cfg.Pipeline, llm, caps, handles, windows, bus, metrics)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}

	var decisions []schemas.Decision
	if len(requests) == 1 {
		decisions = []schemas.Decision{p.Process(ctx, requests[0].Text, requests[0].Environment)}
	} else {
		decisions = p.ProcessBatch(ctx, requests)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, d := range decisions {
		if err := writeDecision(out, opts.output, d); err != nil {
			return err
		}
	}
	return nil
}

func loadRequests(opts *decideOptions, text string) ([]pipeline.Request, error) {
	if opts.batchPath != "" {
		var entries []batchEntry
		if err := readJSONFile(opts.batchPath, &entries); err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			return nil, fmt.Errorf("batch file %s contains no requests", opts.batchPath)
		}
		requests := make([]pipeline.Request, len(entries))
		for i, e := range entries {
			requests[i] = pipeline.Request{Text: e.Text, Environment: e.Environment}
		}
		return requests, nil
	}

	var env schemas.Environment
	if opts.envPath != "" {
		if err := readJSONFile(opts.envPath, &env); err != nil {
			return nil, err
		}
	}
	return []pipeline.Request{{Text: text, Environment: env}}, nil
}

func writeDecision(out io.Writer, format string, d schemas.Decision) error {
	resp := pipeline.Respond(d)
	if format == "json" {
		data, err := json.MarshalIndent(decisionOutput{Decision: d, Response: resp}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode decision: %w", err)
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	}

	fmt.Fprintf(out, "[%s] %s\n", resp.Kind, resp.Text)
	for _, opt := range resp.Options {
		fmt.Fprintf(out, "  - %s\n", opt)
	}
	for _, ad := range d.Actions {
		tool := "(none)"
		conf := ad.Classification.Confidence
		switch {
		case ad.Resolution != nil && ad.Resolution.HasTool():
			tool = ad.Resolution.Tool
			conf = ad.Resolution.Confidence
		case ad.Fallback != nil && len(ad.Fallback.Steps) > 0:
			tool = fmt.Sprintf("%d-step plan", len(ad.Fallback.Steps))
			conf = ad.Fallback.Confidence
		}
		fmt.Fprintf(out, "  %s %-8s %-20s %-24s %.2f  %s\n", ad.Action.ID, ad.Route, ad.Classification.Category, tool, conf, ad.Action.Description)
	}
	return nil
}

// serveMetrics exposes the prometheus registry until the returned function
// is called.
func serveMetrics(cfg config.MetricsConfig, metrics *observability.Metrics, logger *zap.Logger) func() {
	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Metrics endpoint stopped", zap.String("address", cfg.Address), zap.Error(err))
		}
	}()
	logger.Info("Serving metrics", zap.String("address", cfg.Address))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Failed to stop metrics endpoint", zap.Error(err))
		}
	}
}

// traceEvents prints every bus event as a JSON line on w. The returned
// function unsubscribes and waits for the printer to drain.
func traceEvents(bus *events.Bus, w io.Writer) func() {
	ch, unsubscribe := bus.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for evt := range ch {
			line, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			fmt.Fprintln(w, string(line))
		}
	}()
	return func() {
		unsubscribe()
		<-done
	}
}
