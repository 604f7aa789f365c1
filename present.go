package hvers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/blang/semver"
)

// PresentationKind selects how a calculated version is rendered
type PresentationKind int

const (
	// PresentationValue renders the canonical version string
	PresentationValue PresentationKind = iota
	// PresentationComplex renders a VersionRecord
	PresentationComplex
)

func (k PresentationKind) String() string {
	switch k {
	case PresentationValue:
		return "value"
	case PresentationComplex:
		return "complex"
	default:
		return fmt.Sprintf("PresentationKind(%d)", int(k))
	}
}

func ParsePresentationKind(s string) (PresentationKind, error) {
	switch strings.ToLower(s) {
	case "value", "":
		return PresentationValue, nil
	case "complex":
		return PresentationComplex, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedPresentationKind, s)
	}
}

func (k PresentationKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *PresentationKind) UnmarshalText(text []byte) error {
	kind, err := ParsePresentationKind(string(text))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// VersionRecord exposes each component of a version
type VersionRecord struct {
	Major         uint64   `json:"major"`
	Minor         uint64   `json:"minor"`
	Patch         uint64   `json:"patch"`
	PreRelease    []string `json:"preRelease"`
	BuildMetadata []string `json:"buildMetadata"`
	Height        int      `json:"height"`
}

// Presentation is either a plain string or a structured record
type Presentation struct {
	Kind   PresentationKind
	Value  string
	Record *VersionRecord
}

func (p Presentation) String() string {
	if p.Kind == PresentationComplex && p.Record != nil {
		data, err := json.Marshal(p.Record)
		if err != nil {
			return ""
		}
		return string(data)
	}
	return p.Value
}

// MarshalJSON encodes a value presentation as a JSON string and a complex
// presentation as an object.
func (p Presentation) MarshalJSON() ([]byte, error) {
	if p.Kind == PresentationComplex {
		return json.Marshal(p.Record)
	}
	return json.Marshal(p.Value)
}

// UnmarshalJSON accepts either shape produced by MarshalJSON. null is rejected.
func (p *Presentation) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return fmt.Errorf("%w: null presentation", ErrUnsupportedPresentationKind)
	}

	var value string
	if err := json.Unmarshal(data, &value); err == nil {
		*p = Presentation{Kind: PresentationValue, Value: value}
		return nil
	}

	var record VersionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return fmt.Errorf("decoding presentation: %w", err)
	}
	*p = Presentation{Kind: PresentationComplex, Record: &record}
	return nil
}

// Present renders v without modifying it
func Present(v semver.Version, height int, kind PresentationKind) (Presentation, error) {
	switch kind {
	case PresentationValue:
		return Presentation{Kind: kind, Value: v.String()}, nil
	case PresentationComplex:
		record := &VersionRecord{
			Major:         v.Major,
			Minor:         v.Minor,
			Patch:         v.Patch,
			PreRelease:    make([]string, 0, len(v.Pre)),
			BuildMetadata: append(make([]string, 0, len(v.Build)), v.Build...),
			Height:        height,
		}
		for _, pre := range v.Pre {
			record.PreRelease = append(record.PreRelease, pre.String())
		}
		return Presentation{Kind: kind, Record: record}, nil
	default:
		return Presentation{}, fmt.Errorf("%w: %s", ErrUnsupportedPresentationKind, kind)
	}
}

// FallbackVersion is the version hosts report when they choose to continue
// without a repository or reference.
func FallbackVersion() semver.Version {
	return semver.Version{Pre: []semver.PRVersion{{VersionStr: "dev"}}}
}
