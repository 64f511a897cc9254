package store

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// journalRecord is one persisted entry: {id, vector, payload}, mirroring
// §4.4's "ordered list of records" journal format.
type journalRecord struct {
	ID      int64                  `yaml:"id"`
	Vector  []float32              `yaml:"vector"`
	Payload map[string]interface{} `yaml:"payload"`
}

// journalDocument is the single self-describing text document per
// collection.
type journalDocument struct {
	Collection string          `yaml:"collection"`
	Dimension  int             `yaml:"dimension"`
	Metric     string          `yaml:"metric"`
	Records    []journalRecord `yaml:"records"`
}

// journal owns the on-disk file for one collection. It is not
// goroutine-safe on its own; the persistent store serializes access to it
// under its own lock.
type journal struct {
	path string
}

func newJournal(baseDir, collection string) *journal {
	return &journal{path: filepath.Join(baseDir, collection+".yaml")}
}

// load reads the journal file, returning an empty document (not an error)
// if the file does not yet exist.
func (j *journal) load() (*journalDocument, error) {
	data, err := os.ReadFile(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &journalDocument{}, nil
		}
		return nil, fmt.Errorf("read journal %s: %w", j.path, err)
	}
	var doc journalDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse journal %s: %w", j.path, err)
	}
	return &doc, nil
}

// save rewrites the entire journal atomically: write to a temp file in the
// same directory, then rename over the target, so a crash mid-write never
// corrupts previously committed entries.
func (j *journal) save(doc *journalDocument) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal journal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return fmt.Errorf("create journal directory: %w", err)
	}
	tmp := j.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp journal: %w", err)
	}
	if err := os.Rename(tmp, j.path); err != nil {
		return fmt.Errorf("rename temp journal: %w", err)
	}
	return nil
}

// remove deletes the journal file entirely (deleteCollection).
func (j *journal) remove() error {
	if err := os.Remove(j.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove journal %s: %w", j.path, err)
	}
	return nil
}
