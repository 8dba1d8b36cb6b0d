package book

import (
	"encoding/json"
	"fmt"
	"os"
)

// bookFile is the on-disk book format: each line entry maps the UCI moves
// played so far to the weighted continuations seen from that position.
type bookFile struct {
	Lines []bookLine `json:"lines"`
}

type bookLine struct {
	Line    string  `json:"line"` // space-separated UCI moves; "" is the start position
	Replies []Entry `json:"replies"`
}

// FileSource is an in-memory book loaded from a JSON file.
type FileSource struct {
	byLine map[string][]Entry
}

// NewFileSource loads and indexes the book at path.
func NewFileSource(path string) (*FileSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read book %s: %w", path, err)
	}

	var bf bookFile
	if err := json.Unmarshal(data, &bf); err != nil {
		return nil, fmt.Errorf("parse book %s: %w", path, err)
	}

	byLine := make(map[string][]Entry, len(bf.Lines))
	for _, l := range bf.Lines {
		byLine[l.Line] = append(byLine[l.Line], l.Replies...)
	}
	return &FileSource{byLine: byLine}, nil
}

// Lookup returns the continuations recorded for the given move line.
func (f *FileSource) Lookup(moveLine string) ([]Entry, error) {
	return f.byLine[moveLine], nil
}

// Close is a no-op for the in-memory source.
func (f *FileSource) Close() error { return nil }
