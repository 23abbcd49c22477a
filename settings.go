package watermark

import (
	"fmt"
	"strings"
)

// Type selects which marks are applied to an image.
type Type string

const (
	TypeInvisible Type = "invisible"
	TypeVisible   Type = "visible"
	TypeBoth      Type = "both"
)

// ParseType maps a request value to a Type. Unknown values apply both marks.
func ParseType(s string) Type {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case TypeInvisible:
		return TypeInvisible
	case TypeVisible:
		return TypeVisible
	default:
		return TypeBoth
	}
}

func (t Type) robust() bool  { return t != TypeVisible }
func (t Type) visible() bool { return t != TypeInvisible }

// Consent is the AI training consent flag recorded in metadata.
type Consent string

const (
	ConsentGranted     Consent = "granted"
	ConsentDenied      Consent = "denied"
	ConsentConditional Consent = "conditional"
)

// ParseConsent validates a consent value.
func ParseConsent(s string) (Consent, error) {
	switch c := Consent(s); c {
	case ConsentGranted, ConsentDenied, ConsentConditional:
		return c, nil
	}
	return "", fmt.Errorf("AI consent must be 'granted', 'denied', or 'conditional'")
}

// Settings is the per-request watermark configuration.
type Settings struct {
	Type           Type
	Opacity        float64
	Consent        Consent
	AdditionalInfo string
}

// DefaultSettings mirrors the defaults of the upload form.
func DefaultSettings() Settings {
	return Settings{Type: TypeBoth, Opacity: 0.3, Consent: ConsentDenied}
}

// Validate checks the opacity range and consent value.
func (s Settings) Validate() error {
	if !(s.Opacity >= 0 && s.Opacity <= 1) {
		return fmt.Errorf("visible opacity %.2f out of range [0, 1]", s.Opacity)
	}
	if _, err := ParseConsent(string(s.Consent)); err != nil {
		return err
	}
	return nil
}
