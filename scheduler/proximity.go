package scheduler

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// UnknownOrdinal is the position given to buildings missing from the table.
// It keeps unmapped buildings farther away than any mapped pair.
const UnknownOrdinal = 99

//go:embed campus.yaml
var defaultCampus []byte

var (
	ErrEmptyLayout   = errors.New("scheduler: campus layout has no buildings")
	ErrInvalidLayout = errors.New("scheduler: invalid campus layout")
)

// layoutFile is the on-disk shape of a campus layout.
type layoutFile struct {
	Buildings map[string]int `yaml:"buildings"`
}

// Proximity maps buildings to ordinal positions on a single axis.
type Proximity struct {
	ordinals map[string]int
}

// NewProximity builds a model from an explicit ordinal table. The table is
// copied. Two buildings may share an ordinal.
func NewProximity(ordinals map[string]int) (*Proximity, error) {
	if len(ordinals) == 0 {
		return nil, ErrEmptyLayout
	}
	table := make(map[string]int, len(ordinals))
	for name, pos := range ordinals {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("%w: empty building name", ErrInvalidLayout)
		}
		if pos < 0 || pos >= UnknownOrdinal {
			return nil, fmt.Errorf("%w: ordinal %d for %q outside [0,%d)", ErrInvalidLayout, pos, name, UnknownOrdinal)
		}
		table[name] = pos
	}
	return &Proximity{ordinals: table}, nil
}

// ParseProximity decodes a YAML campus layout.
func ParseProximity(r io.Reader) (*Proximity, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f layoutFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyLayout
		}
		return nil, fmt.Errorf("scheduler: decode campus layout: %w", err)
	}
	return NewProximity(f.Buildings)
}

// LoadProximity reads a YAML campus layout from path.
func LoadProximity(path string) (*Proximity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("scheduler: open campus layout: %w", err)
	}
	defer f.Close()
	return ParseProximity(f)
}

// DefaultProximity returns the built-in campus layout.
func DefaultProximity() *Proximity {
	p, err := ParseProximity(bytes.NewReader(defaultCampus))
	if err != nil {
		panic(fmt.Sprintf("scheduler: embedded campus layout: %v", err))
	}
	return p
}

// Ordinal returns the building's position, or UnknownOrdinal.
func (p *Proximity) Ordinal(building string) int {
	if pos, ok := p.ordinals[building]; ok {
		return pos
	}
	return UnknownOrdinal
}

// Known reports whether the building appears in the table.
func (p *Proximity) Known(building string) bool {
	_, ok := p.ordinals[building]
	return ok
}

// Distance is the absolute ordinal difference between two buildings.
func (p *Proximity) Distance(a, b string) int {
	d := p.Ordinal(a) - p.Ordinal(b)
	if d < 0 {
		return -d
	}
	return d
}
