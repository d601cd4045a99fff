package artifacts

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"stock-forecaster/internal/types"
)

// Store persists artifacts under a root directory. Distinct keys map to
// distinct files, so concurrent writers of different symbols never race.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

func (s *Store) Root() string { return s.root }

// Path returns the absolute location of a key.
func (s *Store) Path(k Key) (string, error) {
	rel, err := Resolve(k)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, rel), nil
}

func (s *Store) Exists(k Key) bool {
	p, err := s.Path(k)
	if err != nil {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

// Table is a schemaless CSV table.
type Table struct {
	Header []string
	Rows   [][]string
}

// Column returns the index of a header name, or -1.
func (t Table) Column(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Maps returns the rows keyed by header name.
func (t Table) Maps() []map[string]string {
	out := make([]map[string]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		m := make(map[string]string, len(t.Header))
		for i, h := range t.Header {
			if i < len(row) {
				m[h] = row[i]
			}
		}
		out = append(out, m)
	}
	return out
}

func (s *Store) ReadTable(k Key) (Table, error) {
	b, err := s.ReadBlob(k)
	if err != nil {
		return Table{}, err
	}
	r := csv.NewReader(bytes.NewReader(b))
	r.FieldsPerRecord = -1
	all, err := r.ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("parse %s: %w", k.Kind, err)
	}
	if len(all) == 0 {
		return Table{}, nil
	}
	return Table{Header: all[0], Rows: all[1:]}, nil
}

func (s *Store) WriteTable(k Key, t Table) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.Header); err != nil {
		return err
	}
	if err := w.WriteAll(t.Rows); err != nil {
		return err
	}
	return s.WriteBlob(k, buf.Bytes())
}

// ReadRecords decodes a table into a pointer to a slice of csv-tagged structs.
func (s *Store) ReadRecords(k Key, out any) error {
	b, err := s.ReadBlob(k)
	if err != nil {
		return err
	}
	if err := gocsv.Unmarshal(bytes.NewReader(b), out); err != nil {
		return fmt.Errorf("decode %s: %w", k.Kind, err)
	}
	return nil
}

// WriteRecords encodes a slice of csv-tagged structs, header first.
func (s *Store) WriteRecords(k Key, in any) error {
	var buf bytes.Buffer
	if err := gocsv.Marshal(in, &buf); err != nil {
		return fmt.Errorf("encode %s: %w", k.Kind, err)
	}
	return s.WriteBlob(k, buf.Bytes())
}

func (s *Store) ReadBlob(k Key) ([]byte, error) {
	p, err := s.Path(k)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s %s", types.ErrNotFound, k.Kind, filepath.Base(p))
	}
	return b, err
}

// WriteBlob creates the partition if needed and replaces the file
// atomically. Last writer wins.
func (s *Store) WriteBlob(k Key, data []byte) error {
	p, err := s.Path(k)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(p)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), p)
}

// Remove deletes the file behind a key. A missing file is not an error.
func (s *Store) Remove(k Key) error {
	p, err := s.Path(k)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
