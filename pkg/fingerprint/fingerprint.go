// Package fingerprint describes the element a caller recorded at
// authoring time. A fingerprint is the input to every resolution run:
// the pipeline tries to find the live node that best matches it.
package fingerprint

import (
	"strings"

	"github.com/devicelab-dev/tapresolver/pkg/core"
)

// Fingerprint captures the identifying attributes of a UI element as
// they were observed when the interaction was recorded. All fields are
// optional individually, but at least one anchor must be set: a textual
// attribute, a locator expression, or parseable recorded bounds.
type Fingerprint struct {
	Text        string `json:"text,omitempty" yaml:"text,omitempty"`
	ResourceID  string `json:"resource_id,omitempty" yaml:"resource_id,omitempty"`
	ContentDesc string `json:"content_desc,omitempty" yaml:"content_desc,omitempty"`
	ClassName   string `json:"class_name,omitempty" yaml:"class_name,omitempty"`
	Bounds      string `json:"bounds,omitempty" yaml:"bounds,omitempty"`
	Clickable   bool   `json:"clickable,omitempty" yaml:"clickable,omitempty"`

	// Locator is an optional XPath-like expression recorded alongside
	// the attributes. Collectors mine it for anchors the attribute
	// fields do not carry.
	Locator string `json:"locator,omitempty" yaml:"locator,omitempty"`

	// Signature holds the element's screen-relative position, used to
	// re-anchor matching across devices with different resolutions.
	Signature *BoundsSignature `json:"signature,omitempty" yaml:"signature,omitempty"`
}

// BoundsSignature is the element's geometry expressed as ratios of the
// screen size, so it transfers between resolutions.
type BoundsSignature struct {
	XRatio      float64 `json:"x_ratio" yaml:"x_ratio"`
	YRatio      float64 `json:"y_ratio" yaml:"y_ratio"`
	WidthRatio  float64 `json:"width_ratio" yaml:"width_ratio"`
	HeightRatio float64 `json:"height_ratio" yaml:"height_ratio"`
}

// NewSignature computes a bounds signature from element bounds and the
// screen dimensions. Returns nil when the screen size is degenerate.
func NewSignature(b core.Bounds, screenW, screenH int) *BoundsSignature {
	if screenW <= 0 || screenH <= 0 {
		return nil
	}
	return &BoundsSignature{
		XRatio:      float64(b.Left) / float64(screenW),
		YRatio:      float64(b.Top) / float64(screenH),
		WidthRatio:  float64(b.Width()) / float64(screenW),
		HeightRatio: float64(b.Height()) / float64(screenH),
	}
}

// Project maps the signature back onto a concrete screen size.
func (s *BoundsSignature) Project(screenW, screenH int) core.Bounds {
	left := int(s.XRatio * float64(screenW))
	top := int(s.YRatio * float64(screenH))
	return core.Bounds{
		Left:   left,
		Top:    top,
		Right:  left + int(s.WidthRatio*float64(screenW)),
		Bottom: top + int(s.HeightRatio*float64(screenH)),
	}
}

// Validate checks that the fingerprint carries at least one usable
// anchor. It runs before any device traffic so empty recordings fail
// fast with ErrInvalidFingerprint.
func (f *Fingerprint) Validate() error {
	if f.HasText() || f.HasResourceID() || f.HasContentDesc() {
		return nil
	}
	if strings.TrimSpace(f.Locator) != "" {
		return nil
	}
	if _, ok := f.ParsedBounds(); ok {
		return nil
	}
	return core.ErrInvalidFingerprint
}

// HasText reports whether the fingerprint has a non-blank text anchor.
func (f *Fingerprint) HasText() bool {
	return strings.TrimSpace(f.Text) != ""
}

// HasResourceID reports whether the fingerprint has a resource id.
func (f *Fingerprint) HasResourceID() bool {
	return strings.TrimSpace(f.ResourceID) != ""
}

// HasContentDesc reports whether the fingerprint has a content description.
func (f *Fingerprint) HasContentDesc() bool {
	return strings.TrimSpace(f.ContentDesc) != ""
}

// ParsedBounds parses the recorded bounds string. Returns the zero
// Bounds and false when no bounds were recorded or they are malformed.
func (f *Fingerprint) ParsedBounds() (core.Bounds, bool) {
	if strings.TrimSpace(f.Bounds) == "" {
		return core.Bounds{}, false
	}
	b, err := core.ParseBounds(f.Bounds)
	if err != nil {
		return core.Bounds{}, false
	}
	return b, true
}

// Describe returns a short human-readable summary for logs.
func (f *Fingerprint) Describe() string {
	var parts []string
	if f.HasText() {
		parts = append(parts, "text="+f.Text)
	}
	if f.HasResourceID() {
		parts = append(parts, "id="+f.ResourceID)
	}
	if f.HasContentDesc() {
		parts = append(parts, "desc="+f.ContentDesc)
	}
	if f.ClassName != "" {
		parts = append(parts, "class="+f.ClassName)
	}
	if f.Bounds != "" {
		parts = append(parts, "bounds="+f.Bounds)
	}
	if len(parts) == 0 {
		return "<empty fingerprint>"
	}
	return strings.Join(parts, " ")
}
