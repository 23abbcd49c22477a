package watermark

import (
	"fmt"
	"image"
	"log/slog"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/font/opentype"
)

// Report describes what the robust pipeline did to one image.
type Report struct {
	Payload          Payload
	Bits             int
	BitPlaneApplied  bool
	TransformApplied bool
	OverlayApplied   bool
}

// Engine sequences the embedding stages and caches the overlay font.
type Engine struct {
	transform BlockTransform
	source    Source
	logger    *slog.Logger
	fontPath  string

	fontOnce sync.Once
	font     *opentype.Font
	fontErr  error
}

// Option configures an Engine.
type Option func(*Engine)

// WithTransform sets the block transform used by the transform-domain
// stage. A nil transform disables that stage.
func WithTransform(t BlockTransform) Option {
	return func(e *Engine) { e.transform = t }
}

// WithSource sets the random source of the perturbation stage.
func WithSource(s Source) Option {
	return func(e *Engine) { e.source = s }
}

// WithLogger sets the logger used for skipped stages.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithFontPath points the overlay at a TrueType/OpenType font file. The
// bundled Go Regular face is used when the path is empty or unreadable.
func WithFontPath(path string) Option {
	return func(e *Engine) { e.fontPath = path }
}

// NewEngine constructs an Engine with the DCT transform, the process-wide
// random source and a lazily loaded overlay font.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		transform: DCT8{},
		source:    DefaultSource,
		logger:    slog.Default().With("component", "watermark.engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultEngine struct {
	once sync.Once
	eng  *Engine
}

// Protect applies the robust watermark with the default engine.
func Protect(img image.Image, creator, timestamp string) (*image.RGBA, Report, error) {
	defaultEngine.once.Do(func() {
		defaultEngine.eng = NewEngine()
	})

	return defaultEngine.eng.Protect(img, creator, timestamp)
}

// Protect runs the robust pipeline on a copy of img: bit-plane embedding,
// perturbation, transform-domain embedding and tiling, in that order.
func (e *Engine) Protect(img image.Image, creator, timestamp string) (*image.RGBA, Report, error) {
	rgba, err := toOpaqueRGBA(img)
	if err != nil {
		return nil, Report{}, err
	}

	report, err := e.embed(rgba, creator, timestamp)
	if err != nil {
		return nil, Report{}, err
	}
	return rgba, report, nil
}

// Apply runs the marks selected by settings.Type on a copy of img. The
// overlay, when requested, is drawn after the robust stages.
func (e *Engine) Apply(img image.Image, creator, timestamp string, settings Settings) (*image.RGBA, Report, error) {
	if err := settings.Validate(); err != nil {
		return nil, Report{}, err
	}

	rgba, err := toOpaqueRGBA(img)
	if err != nil {
		return nil, Report{}, err
	}

	var report Report
	if settings.Type.robust() {
		if report, err = e.embed(rgba, creator, timestamp); err != nil {
			return nil, Report{}, err
		}
	}
	if settings.Type.visible() {
		if err := e.DrawOverlay(rgba, creator, settings.Opacity); err != nil {
			return nil, Report{}, err
		}
		report.OverlayApplied = true
	}
	return rgba, report, nil
}

func (e *Engine) embed(rgba *image.RGBA, creator, timestamp string) (Report, error) {
	if creator == "" {
		return Report{}, fmt.Errorf("creator name is required")
	}

	payload := BuildPayload(creator, timestamp)
	bits, err := payload.Bits()
	if err != nil {
		return Report{}, err
	}

	report := Report{Payload: payload, Bits: len(bits)}
	bounds := rgba.Bounds()

	report.BitPlaneApplied = EmbedBitPlane(rgba, bits)
	if !report.BitPlaneApplied {
		e.logger.Warn("bit-plane stage skipped",
			"stage", "bitplane", "bits", len(bits), "pixels", bounds.Dx()*bounds.Dy())
	}

	Perturb(rgba, e.source)

	report.TransformApplied = EmbedTransform(rgba, bits, e.transform)
	if !report.TransformApplied {
		e.logger.Warn("transform stage skipped",
			"stage", "transform", "available", e.transform != nil, "size", bounds.Size())
	}

	StampTiles(rgba)
	return report, nil
}

// toOpaqueRGBA copies the image into a mutable RGBA buffer with every pixel
// fully opaque. Alpha is discarded rather than composited.
func toOpaqueRGBA(src image.Image) (*image.RGBA, error) {
	if src == nil {
		return nil, fmt.Errorf("nil image provided")
	}

	bounds := src.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, fmt.Errorf("invalid image dimensions %dx%d", bounds.Dx(), bounds.Dy())
	}

	straight := image.NewNRGBA(bounds)
	draw.Draw(straight, bounds, src, bounds.Min, draw.Src)

	dst := image.NewRGBA(bounds)
	copy(dst.Pix, straight.Pix)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xFF
	}
	return dst, nil
}
