package storage

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/eugenenazirov/photosheet/internal/layout"
)

const (
	maxPapers = 32
	// MaxPaperInches bounds each side of a paper profile.
	MaxPaperInches = 100.0
)

var (
	// ErrInvalidPaper indicates the provided paper profile violates validation rules.
	ErrInvalidPaper = errors.New("paper profile must have an id and dimensions between 0 and 100 inches")
	// ErrPaperNotFound is returned when no paper profile matches the requested id.
	ErrPaperNotFound = errors.New("paper size not found")
	// ErrCatalogFull is returned when adding a profile would exceed the catalog limit.
	ErrCatalogFull = errors.New("paper catalog is full")
)

var defaultPapers = []layout.PaperProfile{
	layout.NewPaperProfile("letter", `Letter (8.5" x 11")`, 8.5, 11),
	layout.NewPaperProfile("4x6", `4" x 6"`, 4, 6),
}

// Catalog provides access to the paper profiles photos can be printed on.
type Catalog interface {
	ListPapers() ([]layout.PaperProfile, error)
	GetPaper(id string) (layout.PaperProfile, error)
	SetPaper(paper layout.PaperProfile) error
}

// MemoryCatalog keeps paper profiles in-memory and guards access with a RWMutex.
type MemoryCatalog struct {
	mu     sync.RWMutex
	papers map[string]layout.PaperProfile
}

// NewMemoryCatalog initialises the catalog with the default paper profiles.
func NewMemoryCatalog() *MemoryCatalog {
	c := &MemoryCatalog{papers: make(map[string]layout.PaperProfile, len(defaultPapers))}
	for _, p := range defaultPapers {
		c.papers[p.ID] = p
	}
	return c
}

// DefaultPapers returns a copy of the built-in paper profiles.
func DefaultPapers() []layout.PaperProfile {
	return sortedCopy(defaultPapers)
}

// ListPapers returns a copy of all profiles ordered by id.
func (c *MemoryCatalog) ListPapers() ([]layout.PaperProfile, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]layout.PaperProfile, 0, len(c.papers))
	for _, p := range c.papers {
		out = append(out, p)
	}
	return sortedCopy(out), nil
}

// GetPaper looks a profile up by its (case-insensitive) id.
func (c *MemoryCatalog) GetPaper(id string) (layout.PaperProfile, error) {
	key := normalizeID(id)

	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.papers[key]
	if !ok {
		return layout.PaperProfile{}, fmt.Errorf("%w: %q", ErrPaperNotFound, id)
	}
	return p, nil
}

// SetPaper validates, normalises, and stores the provided profile, replacing
// any profile with the same id.
func (c *MemoryCatalog) SetPaper(paper layout.PaperProfile) error {
	normalized, err := normalizePaper(paper)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.papers[normalized.ID]; !exists && len(c.papers) >= maxPapers {
		return ErrCatalogFull
	}
	c.papers[normalized.ID] = normalized
	return nil
}

func normalizePaper(p layout.PaperProfile) (layout.PaperProfile, error) {
	p.ID = normalizeID(p.ID)
	if p.ID == "" || !validDimension(p.WidthIn) || !validDimension(p.HeightIn) {
		return layout.PaperProfile{}, ErrInvalidPaper
	}
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		p.Name = p.ID
	}
	if !validDimension(p.WidthCm / layout.CmPerInch) {
		p.WidthCm = p.WidthIn * layout.CmPerInch
	}
	if !validDimension(p.HeightCm / layout.CmPerInch) {
		p.HeightCm = p.HeightIn * layout.CmPerInch
	}
	return p, nil
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// validDimension reports whether v is a usable side length in inches.
func validDimension(v float64) bool {
	return v > 0 && v <= MaxPaperInches && !math.IsNaN(v)
}

func sortedCopy(src []layout.PaperProfile) []layout.PaperProfile {
	out := make([]layout.PaperProfile, len(src))
	copy(out, src)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
