package main

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

//go:embed questions.json
var defaultQuestions []byte

// CatalogAnswer is one scorable answer within a catalog entry.
type CatalogAnswer struct {
	Text   string `json:"text"`
	Points int    `json:"points"`
}

// CatalogEntry is one question plus its ordered answers.
type CatalogEntry struct {
	Question string          `json:"question"`
	Answers  []CatalogAnswer `json:"answers"`
}

// Catalog is the ordered, read-only question list the game cycles
// through. Advancing past the last entry wraps back to the first.
type Catalog []CatalogEntry

func (c Catalog) validate() error {
	if len(c) == 0 {
		return errors.New("question catalog is empty")
	}
	for i, entry := range c {
		if entry.Question == "" {
			return fmt.Errorf("question %d has no text", i)
		}
		if len(entry.Answers) == 0 {
			return fmt.Errorf("question %d (%q) has no answers", i, entry.Question)
		}
	}
	return nil
}

// loadCatalog reads the question catalog from path, or falls back to
// the embedded default set when path is empty.
func loadCatalog(path string) (Catalog, error) {
	data := defaultQuestions

	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading question catalog: %w", err)
		}
	}

	var catalog Catalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parsing question catalog: %w", err)
	}

	if err := catalog.validate(); err != nil {
		return nil, err
	}

	return catalog, nil
}
