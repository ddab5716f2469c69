package entity

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Source produces a lazy, restartable stream of entities. Each call to
// Each walks the whole stream from the start; returning an error from
// the callback stops the walk and propagates the error.
type Source interface {
	Each(fn func(*Entity) error) error
}

// SliceSource adapts an in-memory slice of entities.
type SliceSource []*Entity

// Each walks the slice in order.
func (s SliceSource) Each(fn func(*Entity) error) error {
	for _, e := range s {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// FuncSource adapts a generator function so ad-hoc producers (dataset
// loaders, test fixtures) can act as sources without a new type.
type FuncSource func(fn func(*Entity) error) error

// Each invokes the generator.
func (s FuncSource) Each(fn func(*Entity) error) error {
	return s(fn)
}

// FilterLabel narrows a source to entities carrying the given label
// without re-reading anything up front; filtering happens per walk.
func FilterLabel(src Source, label string) Source {
	return FuncSource(func(fn func(*Entity) error) error {
		return src.Each(func(e *Entity) error {
			if e.Label != label {
				return nil
			}
			return fn(e)
		})
	})
}

// FileSource streams entities from a .jsonl, .csv, .tsv or .txt file.
// Multi-value alias cells are split on the splitter (default "|"), and
// unrecognized columns are folded into Meta.
type FileSource struct {
	Path     string
	Splitter string
}

// NewFileSource creates a file source with the default splitter.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path, Splitter: "|"}
}

// Each opens the file and streams one entity per record.
func (s *FileSource) Each(fn func(*Entity) error) error {
	splitter := s.Splitter
	if splitter == "" {
		splitter = "|"
	}

	ext := strings.ToLower(filepath.Ext(s.Path))
	switch ext {
	case ".jsonl":
		return s.eachJSONL(fn)
	case ".csv":
		return s.eachSV(fn, ',', true, splitter)
	case ".tsv":
		return s.eachSV(fn, '\t', true, splitter)
	case ".txt":
		return s.eachTxt(fn)
	default:
		return fmt.Errorf("entity: unsupported source file type %q", ext)
	}
}

func (s *FileSource) eachJSONL(fn func(*Entity) error) error {
	f, err := os.Open(s.Path)
	if err != nil {
		return fmt.Errorf("entity: open source: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return fmt.Errorf("entity: %s line %d: %w", s.Path, line, err)
		}
		e, err := Convert(rec)
		if err != nil {
			return fmt.Errorf("entity: %s line %d: %w", s.Path, line, err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (s *FileSource) eachSV(fn func(*Entity) error, comma rune, header bool, splitter string) error {
	f, err := os.Open(s.Path)
	if err != nil {
		return fmt.Errorf("entity: open source: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = comma
	reader.FieldsPerRecord = -1

	var fields []string
	first := true
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("entity: read %s: %w", s.Path, err)
		}
		if first && header {
			fields = row
			first = false
			continue
		}

		rec := make(map[string]any, len(fields))
		for i, cell := range row {
			if i >= len(fields) {
				break
			}
			key := fields[i]
			switch key {
			case "aliases":
				var aliases []string
				for _, a := range strings.Split(cell, splitter) {
					if a != "" {
						aliases = append(aliases, a)
					}
				}
				rec[key] = aliases
			case "priority":
				if cell == "" {
					continue
				}
				p, err := strconv.Atoi(cell)
				if err != nil {
					return fmt.Errorf("entity: %s: bad priority %q: %w", s.Path, cell, err)
				}
				rec[key] = p
			default:
				if cell != "" {
					rec[key] = cell
				}
			}
		}
		if len(rec) == 0 {
			continue
		}
		e, err := Convert(rec)
		if err != nil {
			return fmt.Errorf("entity: %s: %w", s.Path, err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
}

func (s *FileSource) eachTxt(fn func(*Entity) error) error {
	f, err := os.Open(s.Path)
	if err != nil {
		return fmt.Errorf("entity: open source: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		value := strings.TrimSpace(scanner.Text())
		if value == "" {
			continue
		}
		if err := fn(&Entity{Value: value}); err != nil {
			return err
		}
	}
	return scanner.Err()
}
