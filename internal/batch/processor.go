package batch

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	watermark "github.com/gcslaoli/provenance-watermark-go"
)

const tracerName = "github.com/gcslaoli/provenance-watermark-go/internal/batch"

// File is one uploaded image. Open is only called once the whole batch has
// passed validation. Size may be negative when unknown; the limit is then
// enforced while reading.
type File interface {
	Name() string
	ContentType() string
	Size() int64
	Open() (io.ReadCloser, error)
}

// Request is a batch of images plus the watermark configuration, as
// received from the caller.
type Request struct {
	Files          []File
	Creator        string
	Type           string
	Opacity        float64
	Consent        string
	AdditionalInfo string
}

// Limits bounds a batch.
type Limits struct {
	MaxImages    int
	MaxFileBytes int64
}

// DefaultLimits allows five images of up to 10 MiB each.
func DefaultLimits() Limits {
	return Limits{MaxImages: 5, MaxFileBytes: 10 * 1024 * 1024}
}

var supportedContentTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/jpg":  true,
}

// Output is one watermarked image.
type Output struct {
	Source      string
	Name        string
	Format      string
	ContentType string
	Data        []byte
	Digest      string
	Report      watermark.Report
	Metadata    watermark.TagResult
}

// Result is a processed batch. Outputs are in request order.
type Result struct {
	ID        string
	Timestamp time.Time
	Outputs   []Output
}

// Processor validates and watermarks batches.
type Processor struct {
	engine  *watermark.Engine
	limits  Limits
	workers int
	now     func() time.Time
	logger  *slog.Logger
	tracer  trace.Tracer
}

// Option configures a Processor.
type Option func(*Processor)

// WithLimits overrides DefaultLimits.
func WithLimits(l Limits) Option {
	return func(p *Processor) { p.limits = l }
}

// WithWorkers sets how many images are processed concurrently.
func WithWorkers(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithClock sets the source of batch timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// WithLogger sets the processor logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// NewProcessor returns a sequential processor with default limits.
func NewProcessor(engine *watermark.Engine, opts ...Option) *Processor {
	p := &Processor{
		engine:  engine,
		limits:  DefaultLimits(),
		workers: 1,
		now:     time.Now,
		logger:  slog.Default().With("component", "batch.processor"),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Limits returns the limits enforced by p.
func (p *Processor) Limits() Limits { return p.limits }

// Validate checks req against the limits without reading any file and
// returns the resolved watermark settings.
func (p *Processor) Validate(req Request) (watermark.Settings, error) {
	if len(req.Files) == 0 {
		return watermark.Settings{}, reject(KindEmptyBatch, "At least one image is required.")
	}
	if len(req.Files) > p.limits.MaxImages {
		return watermark.Settings{}, TooManyImages(p.limits.MaxImages)
	}
	if strings.TrimSpace(req.Creator) == "" {
		return watermark.Settings{}, reject(KindMissingCreator, "Creator name is required.")
	}

	consent, err := watermark.ParseConsent(req.Consent)
	if err != nil {
		return watermark.Settings{}, &RequestError{Kind: KindInvalidConsent, Reason: "AI consent must be 'granted', 'denied', or 'conditional'.", Err: err}
	}

	settings := watermark.Settings{
		Type:           watermark.ParseType(req.Type),
		Opacity:        req.Opacity,
		Consent:        consent,
		AdditionalInfo: req.AdditionalInfo,
	}
	if err := settings.Validate(); err != nil {
		return watermark.Settings{}, &RequestError{Kind: KindInvalidOpacity, Reason: "Visible opacity must be between 0 and 1.", Err: err}
	}

	for _, f := range req.Files {
		if !supportedContentTypes[f.ContentType()] {
			return watermark.Settings{}, reject(KindUnsupportedType, "Unsupported file type: %s", f.ContentType())
		}
		if f.Size() > p.limits.MaxFileBytes {
			return watermark.Settings{}, FileTooLarge(f.Name())
		}
	}
	return settings, nil
}

// Process validates req and watermarks every image. All images share one
// timestamp. The first failing image aborts the batch.
func (p *Processor) Process(ctx context.Context, req Request) (*Result, error) {
	settings, err := p.Validate(req)
	if err != nil {
		return nil, err
	}

	res := &Result{
		ID:        uuid.NewString(),
		Timestamp: p.now(),
		Outputs:   make([]Output, len(req.Files)),
	}

	ctx, span := p.tracer.Start(ctx, "batch.process", trace.WithAttributes(
		attribute.String("batch.id", res.ID),
		attribute.Int("batch.images", len(req.Files)),
		attribute.String("watermark.type", string(settings.Type)),
	))
	defer span.End()

	logger := p.logger.With("batch", res.ID)
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, f := range req.Files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := p.processFile(gctx, f, req.Creator, res.Timestamp, settings)
			if err != nil {
				return err
			}
			res.Outputs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	logger.Info("batch processed",
		"images", len(res.Outputs), "type", settings.Type, "duration", time.Since(start))
	return res, nil
}

func (p *Processor) processFile(ctx context.Context, f File, creator string, ts time.Time, settings watermark.Settings) (Output, error) {
	_, span := p.tracer.Start(ctx, "batch.image", trace.WithAttributes(
		attribute.String("image.name", f.Name()),
	))
	defer span.End()

	data, err := p.read(f)
	if err != nil {
		span.RecordError(err)
		return Output{}, err
	}

	name, format, _ := OutputName(f.Name())
	encoded, report, tag, err := p.engine.ProtectBytes(data, format, creator, ts, settings)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, watermark.ErrUndecodable) {
			return Output{}, &RequestError{
				Kind:   KindInvalidImage,
				Reason: fmt.Sprintf("Invalid image: %s. %v", f.Name(), err),
				Err:    err,
			}
		}
		return Output{}, fmt.Errorf("watermark %s: %w", f.Name(), err)
	}

	span.SetAttributes(
		attribute.Int("image.bytes", len(encoded)),
		attribute.Bool("stage.bitplane", report.BitPlaneApplied),
		attribute.Bool("stage.transform", report.TransformApplied),
		attribute.Bool("metadata.applied", tag.Applied),
	)
	if !tag.Applied {
		p.logger.Warn("metadata skipped", "image", f.Name(), "reason", tag.Reason)
	}

	return Output{
		Source:      f.Name(),
		Name:        name,
		Format:      format,
		ContentType: ContentTypeFor(format),
		Data:        encoded,
		Digest:      digest(encoded),
		Report:      report,
		Metadata:    tag,
	}, nil
}

// read loads f, enforcing the size cap for files that did not report a size.
func (p *Processor) read(f File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name(), err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, p.limits.MaxFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name(), err)
	}
	if int64(len(data)) > p.limits.MaxFileBytes {
		return nil, FileTooLarge(f.Name())
	}
	return data, nil
}

func digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
