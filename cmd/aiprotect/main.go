package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	watermark "github.com/gcslaoli/provenance-watermark-go"
	"github.com/gcslaoli/provenance-watermark-go/internal/batch"
	"github.com/gcslaoli/provenance-watermark-go/internal/config"
	"github.com/gcslaoli/provenance-watermark-go/internal/server"
)

// go run ./cmd/aiprotect serve --config aiprotect.yaml
// go run ./cmd/aiprotect protect --creator Alice --in photo.jpg --in scan.png --out protected/
// go run ./cmd/aiprotect protect --creator Alice --type invisible --inbase64 "data:image/png;base64,..." --outbase64

const usage = `usage:
  aiprotect serve   [--config file] [--addr host:port]
  aiprotect protect --creator name (--in file ... | --inbase64 data) [options]
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "protect":
		err = runProtect(os.Args[2:])
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "aiprotect: %v\n", err)
		os.Exit(1)
	}
}

func runServe(args []string) error {
	flags := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	configPath := flags.String("config", "", "Path to the YAML config file (default $"+config.EnvVar+")")
	addr := flags.String("addr", "", "Listen address, overrides server.address")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Server.Address = *addr
	}

	logger := cfg.Log.NewLogger(os.Stderr)
	engine := watermark.NewEngine(
		watermark.WithFontPath(cfg.Watermark.FontPath),
		watermark.WithLogger(logger.With("component", "watermark.engine")),
	)
	processor := batch.NewProcessor(engine,
		batch.WithLimits(batch.Limits{MaxImages: cfg.Limits.MaxImages, MaxFileBytes: cfg.Limits.MaxFileBytes()}),
		batch.WithWorkers(cfg.Watermark.Workers),
		batch.WithLogger(logger.With("component", "batch.processor")),
	)

	defaults := watermark.Settings{
		Type:    watermark.ParseType(cfg.Watermark.DefaultType),
		Opacity: cfg.Watermark.DefaultOpacity,
		Consent: watermark.Consent(cfg.Watermark.DefaultConsent),
	}
	srv, err := server.New(processor,
		server.WithDefaults(defaults),
		server.WithRateLimit(cfg.Server.RateLimit, cfg.Server.Burst),
		server.WithLogger(logger.With("component", "server")),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx, cfg.Server.Address, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)
}
