// Package watchlist holds the compounds that scheduled reports compare.
package watchlist

import (
	"fmt"
	"strings"
	"time"
)

type Entry struct {
	ID       string    `json:"id"`
	Compound string    `json:"compound"` // SMILES, name or PubChem CID
	Name     string    `json:"name,omitempty"`
	Notes    string    `json:"notes,omitempty"`
	Created  time.Time `json:"created"`
	Updated  time.Time `json:"updated"`
}

func (e *Entry) Validate() error {
	e.Compound = strings.TrimSpace(e.Compound)
	if e.Compound == "" {
		return fmt.Errorf("compound is required")
	}
	return nil
}

// Label is the display name, falling back to the identifier.
func (e Entry) Label() string {
	if e.Name != "" {
		return e.Name
	}
	return e.Compound
}

// Compounds returns the identifiers and display names of entries in order.
// Names are only returned when at least one entry has one.
func Compounds(entries []*Entry) (ids []string, names []string) {
	named := false
	for _, e := range entries {
		ids = append(ids, e.Compound)
		names = append(names, e.Label())
		if e.Name != "" {
			named = true
		}
	}
	if !named {
		names = nil
	}
	return ids, names
}
