package identity

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/retinalab/dcmexport/internal/diag"
)

// ReservedCSV is the file the generated mapping is persisted to when no
// external mapping is supplied. Supplying it as the --mapping argument is a
// configuration error.
const ReservedCSV = "study_2_patient.csv"

// csvHeader is the exact header literal of the mapping file.
var csvHeader = []string{"study_id", "patient_id"}

// Pair is one (anonymized key, original key) mapping entry.
type Pair struct {
	Anon     string
	Original string
}

// Mapping is an external patient mapping loaded once per run and treated as
// immutable input for resolution.
type Mapping struct {
	toAnon map[string]string // original -> anonymized
	anon   map[string]bool   // anonymized keys present in the file
}

// LoadMapping reads a mapping CSV. Rows are (anonymized key, original key);
// a leading header row matching the reserved literal is skipped.
func LoadMapping(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mapping: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read mapping %s: %w", path, err)
	}

	m := &Mapping{
		toAnon: make(map[string]string, len(rows)),
		anon:   make(map[string]bool, len(rows)),
	}
	for i, row := range rows {
		if len(row) < 2 {
			continue
		}
		anon, original := strings.TrimSpace(row[0]), strings.TrimSpace(row[1])
		if i == 0 && anon == csvHeader[0] && original == csvHeader[1] {
			continue
		}
		m.toAnon[original] = anon
		m.anon[anon] = true
	}
	return m, nil
}

// Lookup returns the anonymized key mapped to the given original key.
func (m *Mapping) Lookup(original string) (string, bool) {
	anon, ok := m.toAnon[original]
	return anon, ok
}

// HasAnon reports whether the anonymized key appears in the mapping file.
func (m *Mapping) HasAnon(anon string) bool {
	return m.anon[anon]
}

// Len returns the number of mapping entries.
func (m *Mapping) Len() int { return len(m.toAnon) }

// writeCSV marshals header plus rows into the mapping file format.
func writeCSV(pairs []Pair) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, p := range pairs {
		if err := w.Write([]string{p.Anon, p.Original}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// versionedName appends an incrementing numeric suffix before the extension:
// study_2_patient.csv -> study_2_patient_1.csv.
func versionedName(base string, version int) string {
	ext := filepath.Ext(base)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(base, ext), version, ext)
}

// Save persists the pair set to path. When the file already holds identical
// content nothing is touched. On conflicting content the old file is renamed
// with the first free numeric suffix before the new content is moved into
// place, so an earlier mapping is never silently lost. The write itself goes
// through a temp file in the target directory followed by a rename.
func Save(path string, pairs []Pair, sink diag.Sink) error {
	content, err := writeCSV(pairs)
	if err != nil {
		return fmt.Errorf("encode mapping: %w", err)
	}

	if existing, err := os.ReadFile(path); err == nil {
		if bytes.Equal(existing, content) {
			sink.Infof("No changes detected. '%s' remains unchanged.", path)
			return nil
		}
		version := 1
		backup := versionedName(path, version)
		for {
			if _, err := os.Stat(backup); os.IsNotExist(err) {
				break
			}
			version++
			backup = versionedName(path, version)
		}
		if err := os.Rename(path, backup); err != nil {
			return fmt.Errorf("back up mapping: %w", err)
		}
		sink.Infof("Old '%s' renamed to '%s'", path, backup)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".mapping-*.csv")
	if err != nil {
		return fmt.Errorf("temp mapping: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write mapping: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close mapping: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace mapping: %w", err)
	}
	sink.Infof("Generated mapping saved to '%s'", path)
	return nil
}
