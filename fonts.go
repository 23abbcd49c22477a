package watermark

import (
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// overlayFace returns a face of the requested pixel size. The parsed font is
// loaded once per engine; any failure degrades to the fixed 7x13 bitmap face.
func (e *Engine) overlayFace(size float64) font.Face {
	e.fontOnce.Do(func() {
		e.font, e.fontErr = loadFont(e.fontPath, e.logger)
	})

	if e.fontErr != nil {
		e.logger.Warn("overlay font unavailable, using bitmap face", "err", e.fontErr)
		return basicfont.Face7x13
	}

	face, err := opentype.NewFace(e.font, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		e.logger.Warn("overlay face unavailable, using bitmap face", "size", size, "err", err)
		return basicfont.Face7x13
	}
	return face
}

// loadFont parses the font at path, falling back to the bundled Go Regular
// font when path is empty or cannot be used.
func loadFont(path string, logger *slog.Logger) (*opentype.Font, error) {
	if path != "" {
		f, err := parseFontFile(path)
		if err == nil {
			return f, nil
		}
		logger.Warn("configured font unusable, using bundled font", "path", path, "err", err)
	}

	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse bundled font: %w", err)
	}
	return f, nil
}

func parseFontFile(path string) (*opentype.Font, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return f, nil
}
