// Package main is the llmdispatch entry point: a one-shot chat dispatch
// CLI and an OpenAI-compatible serving mode.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"llmdispatch/config"
	"llmdispatch/internal/core"
	"llmdispatch/internal/credential"
	"llmdispatch/internal/dispatch"
	"llmdispatch/internal/httpclient"
	"llmdispatch/internal/observability"
	"llmdispatch/internal/server"
	"llmdispatch/internal/transport"
	"llmdispatch/internal/version"
)

func main() {
	var (
		versionFlag = flag.Bool("version", false, "print version information")
		configPath  = flag.String("config", "", "path to llmdispatch.yaml")
		serveFlag   = flag.Bool("serve", false, "run the HTTP facade instead of a one-shot dispatch")
		addrFlag    = flag.String("addr", "", "listen address for -serve (overrides config)")
		modelFlag   = flag.String("model", "", "provider selector, e.g. openai or claude:claude-3-5-haiku")
		systemFlag  = flag.String("system", "", "system message for one-shot dispatch")
		streamFlag  = flag.Bool("stream", false, "stream the completion to stdout")
		dryRunFlag  = flag.Bool("dry-run", false, "describe the provider request without sending it")
		debugFlag   = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	if *versionFlag {
		fmt.Println(version.Info())
		return
	}

	logger := observability.NewLogger(os.Stderr, *debugFlag)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	pollBudget, err := cfg.PollBudget()
	if err != nil {
		logger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	hooks := transport.Hooks{}
	if *serveFlag {
		hooks = observability.NewMetrics(prometheus.DefaultRegisterer).Hooks()
	}

	resolver := cfg.Resolver()
	httpClient := httpclient.NewStreaming(httpclient.DefaultConfig())
	dispatcher := dispatch.New(dispatch.Options{
		Resolver:       resolver,
		Tokens:         credential.NewTokenCache(resolver, httpclient.New(httpclient.DefaultConfig())),
		Executor:       transport.NewAdapter(httpClient, logger, hooks),
		Logger:         logger,
		ModelOverrides: cfg.Models,
		Generics:       cfg.Generics(),
		Fallback:       cfg.FallbackEndpoint(),
		PollBudget:     pollBudget,
	})

	if *serveFlag {
		serve(dispatcher, cfg, logger, *addrFlag)
		return
	}

	if err := runOnce(dispatcher, *modelFlag, *systemFlag, *streamFlag, *dryRunFlag, flag.Args()); err != nil {
		logger.Error("dispatch failed", "err", err)
		os.Exit(1)
	}
}

// runOnce dispatches a single prompt from the arguments or stdin and
// writes the completion to stdout.
func runOnce(d *dispatch.Dispatcher, selector, system string, stream, dryRun bool, args []string) error {
	if selector == "" {
		return errors.New("-model is required, e.g. -model openai:gpt-4o")
	}

	prompt := strings.Join(args, " ")
	if prompt == "" {
		raw, err := io.ReadAll(bufio.NewReader(os.Stdin))
		if err != nil {
			return fmt.Errorf("read prompt from stdin: %w", err)
		}
		prompt = strings.TrimSpace(string(raw))
	}

	var messages []core.Message
	if system != "" {
		messages = append(messages, core.Message{Role: core.RoleSystem, Content: system})
	}
	messages = append(messages, core.Message{Role: core.RoleUser, Content: prompt})

	req := &core.ChatRequest{
		Provider: selector,
		Messages: messages,
		Stream:   stream,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if dryRun {
		res, err := d.Describe(ctx, req)
		if err != nil {
			return err
		}
		printWarnings(res.Warnings)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Request)
	}

	res, err := d.Dispatch(ctx, req)
	if err != nil {
		return err
	}
	printWarnings(res.Warnings)

	if !res.Streaming() {
		fmt.Println(res.Text)
		return nil
	}

	defer res.Stream.Close()
	for {
		delta, err := res.Stream.Recv()
		if err == io.EOF {
			fmt.Println()
			return nil
		}
		if err != nil {
			fmt.Println()
			return err
		}
		fmt.Print(delta)
	}
}

func printWarnings(warnings []string) {
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}
}

// serve runs the HTTP facade until SIGINT/SIGTERM, then drains.
func serve(d *dispatch.Dispatcher, cfg *config.Config, logger *slog.Logger, addrOverride string) {
	addr := cfg.Serve.Addr
	if addrOverride != "" {
		addr = addrOverride
	}

	if cfg.Serve.MasterKey == "" {
		logger.Warn("no master key configured; the facade accepts unauthenticated requests")
	}

	srv := server.New(server.NewHandler(d, logger), logger, &server.Config{
		MasterKey:      cfg.Serve.MasterKey,
		MetricsEnabled: cfg.Serve.Metrics,
		BodySizeLimit:  cfg.Serve.BodySizeLimit,
	})

	go func() {
		logger.Info("listening", "addr", addr, "version", version.Version)
		if err := srv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", "err", err)
	}
}
