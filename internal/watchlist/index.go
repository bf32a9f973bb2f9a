// Package watchlist builds the per-cycle lookup of flagged aircraft from the
// plane-alert-db style CSV table.
package watchlist

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rewired-gh/skywatch/internal/logger"
	"github.com/rewired-gh/skywatch/internal/models"
)

// Schema names the columns the index is built from.
type Schema struct {
	IdentifierColumn string
	OperatorColumn   string
	// CategoryHint is matched as a substring against header names; the first
	// hit wins. CategoryDefault is used when nothing contains the hint.
	CategoryHint    string
	CategoryDefault string
}

// DefaultSchema matches the plane-alert-db headers.
func DefaultSchema() Schema {
	return Schema{
		IdentifierColumn: "$ICAO",
		OperatorColumn:   "$Operator",
		CategoryHint:     "Category",
		CategoryDefault:  "#Category",
	}
}

// DefaultCategories is the included category set.
var DefaultCategories = []string{
	"Dictator Alert",
	"Oligarchs",
	"Putin's War",
	"Hired Gun",
	"Nuclear",
	"Government",
	"Military",
}

// ColumnError reports a column the schema requires but the header lacks.
type ColumnError struct {
	Column string
	Header []string
}

func (e *ColumnError) Error() string {
	return fmt.Sprintf("watchlist column %q not found in header %v", e.Column, e.Header)
}

// Index maps a normalized identifier to its watchlist entry.
// It is built once per cycle and not modified afterwards.
type Index struct {
	entries map[string]models.WatchlistEntry
}

// NewIndex builds an index from entries. Later duplicates overwrite earlier ones.
func NewIndex(entries []models.WatchlistEntry) *Index {
	idx := &Index{entries: make(map[string]models.WatchlistEntry, len(entries))}
	for _, e := range entries {
		e.Identifier = models.NormalizeIdentifier(e.Identifier)
		if e.Identifier == "" {
			continue
		}
		idx.entries[e.Identifier] = e
	}
	return idx
}

// Lookup returns the entry for an identifier, normalizing it first.
func (i *Index) Lookup(id string) (models.WatchlistEntry, bool) {
	if i == nil {
		return models.WatchlistEntry{}, false
	}
	e, ok := i.entries[models.NormalizeIdentifier(id)]
	return e, ok
}

// Len returns the number of watched identifiers.
func (i *Index) Len() int {
	if i == nil {
		return 0
	}
	return len(i.entries)
}

type columns struct {
	identifier, operator, category int
}

// resolve maps schema names to header positions.
func (s Schema) resolve(header []string) (columns, string, error) {
	find := func(name string) int {
		for i, h := range header {
			if h == name {
				return i
			}
		}
		return -1
	}

	c := columns{
		identifier: find(s.IdentifierColumn),
		operator:   find(s.OperatorColumn),
		category:   -1,
	}
	if c.identifier < 0 {
		return c, "", &ColumnError{Column: s.IdentifierColumn, Header: header}
	}
	if c.operator < 0 {
		return c, "", &ColumnError{Column: s.OperatorColumn, Header: header}
	}

	if s.CategoryHint != "" {
		for i, h := range header {
			if strings.Contains(h, s.CategoryHint) {
				c.category = i
				break
			}
		}
	}
	if c.category < 0 {
		c.category = find(s.CategoryDefault)
	}
	if c.category < 0 {
		return c, "", &ColumnError{Column: s.CategoryDefault, Header: header}
	}
	return c, header[c.category], nil
}

// Parse reads a CSV table and keeps only rows whose category is in categories.
func Parse(r io.Reader, schema Schema, categories []string) (*Index, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("watchlist is empty")
		}
		return nil, fmt.Errorf("failed to read watchlist header: %w", err)
	}
	header = trimHeader(header)

	cols, categoryColumn, err := schema.resolve(header)
	if err != nil {
		return nil, err
	}
	logger.Debug("Watchlist category column resolved to %q", categoryColumn)

	included := make(map[string]bool, len(categories))
	for _, c := range categories {
		included[strings.TrimSpace(c)] = true
	}

	need := max(cols.identifier, cols.operator, cols.category) + 1
	var entries []models.WatchlistEntry
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read watchlist row: %w", err)
		}
		if len(rec) < need {
			continue
		}
		category := strings.TrimSpace(rec[cols.category])
		if !included[category] {
			continue
		}
		entries = append(entries, models.WatchlistEntry{
			Identifier: rec[cols.identifier],
			Operator:   strings.TrimSpace(rec[cols.operator]),
			Category:   category,
		})
	}

	return NewIndex(entries), nil
}

func trimHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		out[i] = strings.TrimSpace(h)
	}
	return out
}
