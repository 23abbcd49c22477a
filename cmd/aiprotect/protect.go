package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"

	watermark "github.com/gcslaoli/provenance-watermark-go"
	"github.com/gcslaoli/provenance-watermark-go/internal/batch"
	"github.com/gcslaoli/provenance-watermark-go/internal/config"
)

func runProtect(args []string) error {
	flags := pflag.NewFlagSet("protect", pflag.ContinueOnError)
	configPath := flags.String("config", "", "Path to the YAML config file (default $"+config.EnvVar+")")
	inputs := flags.StringArray("in", nil, "Image to protect (png/jpg), repeatable")
	inputBase64 := flags.String("inbase64", "", "Base64 image input (optionally data URL)")
	outDir := flags.String("out", "", "Output directory (defaults to the directory of each input)")
	outputBase64 := flags.Bool("outbase64", false, "Write the protected PNG as base64 to stdout (with --inbase64)")
	creator := flags.String("creator", "", "Creator name embedded in the watermark")
	typ := flags.String("type", "", "Watermark type: invisible, visible or both")
	opacity := flags.Float64("opacity", -1, "Visible overlay opacity in [0, 1]")
	consent := flags.String("consent", "", "AI training consent: granted, denied or conditional")
	info := flags.String("info", "", "Additional information stored in metadata")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger := cfg.Log.NewLogger(os.Stderr)
	engine := watermark.NewEngine(
		watermark.WithFontPath(cfg.Watermark.FontPath),
		watermark.WithLogger(logger.With("component", "watermark.engine")),
	)

	if *inputBase64 != "" {
		if !*outputBase64 {
			return errors.New("--inbase64 requires --outbase64")
		}
		if strings.TrimSpace(*creator) == "" {
			return errors.New("--creator is required")
		}
		encoded, report, err := engine.ProtectBase64(*inputBase64, *creator, time.Now().Format(watermark.TimestampLayout))
		if err != nil {
			return err
		}
		fmt.Println(encoded)
		fmt.Fprintf(os.Stderr, "Processed base64 input [bitplane=%v transform=%v hash=%s]\n",
			report.BitPlaneApplied, report.TransformApplied, report.Payload.ContentHash)
		return nil
	}

	if len(*inputs) == 0 {
		flags.Usage()
		return errors.New("no input images")
	}

	req := batch.Request{
		Creator:        *creator,
		Type:           firstNonEmpty(*typ, cfg.Watermark.DefaultType),
		Opacity:        cfg.Watermark.DefaultOpacity,
		Consent:        firstNonEmpty(*consent, cfg.Watermark.DefaultConsent),
		AdditionalInfo: *info,
	}
	if *opacity >= 0 {
		req.Opacity = *opacity
	}
	for _, path := range *inputs {
		f, err := newLocalFile(path)
		if err != nil {
			return err
		}
		req.Files = append(req.Files, f)
	}

	processor := batch.NewProcessor(engine,
		batch.WithLimits(batch.Limits{MaxImages: cfg.Limits.MaxImages, MaxFileBytes: cfg.Limits.MaxFileBytes()}),
		batch.WithWorkers(cfg.Watermark.Workers),
		batch.WithLogger(logger.With("component", "batch.processor")),
	)
	res, err := processor.Process(context.Background(), req)
	if err != nil {
		return err
	}

	for i, out := range res.Outputs {
		dir := *outDir
		if dir == "" {
			dir = filepath.Dir((*inputs)[i])
		}
		outPath := filepath.Join(dir, out.Name)
		if err := os.WriteFile(outPath, out.Data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", outPath, err)
		}
		fmt.Printf("Processed %s -> %s [bitplane=%v transform=%v overlay=%v metadata=%v]\n",
			out.Source, outPath, out.Report.BitPlaneApplied, out.Report.TransformApplied,
			out.Report.OverlayApplied, out.Metadata.Applied)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// localFile adapts a file on disk to batch.File.
type localFile struct {
	path        string
	contentType string
	size        int64
}

func newLocalFile(path string) (localFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return localFile{}, fmt.Errorf("stat input: %w", err)
	}
	if info.IsDir() {
		return localFile{}, fmt.Errorf("input %s is a directory", path)
	}
	return localFile{
		path:        path,
		contentType: mime.TypeByExtension(strings.ToLower(filepath.Ext(path))),
		size:        info.Size(),
	}, nil
}

func (f localFile) Name() string                 { return filepath.Base(f.path) }
func (f localFile) ContentType() string          { return f.contentType }
func (f localFile) Size() int64                  { return f.size }
func (f localFile) Open() (io.ReadCloser, error) { return os.Open(f.path) }
