// Package records loads stored form records: the tax-form rows a taxpayer's
// return is made of, each carrying its fill payload.
package records

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-viper/mapstructure/v2"

	"github.com/a3tai/taxform-filler/internal/security"
)

var (
	// ErrNotFound is returned when no record matches
	ErrNotFound = errors.New("form record not found")
	// ErrInvalidKey is returned for lookup keys that cannot name a record
	ErrInvalidKey = errors.New("invalid record key")
)

// Record is one stored form of a taxpayer's return. Data is kept as decoded;
// whether it is a usable payload is decided when the form is filled.
type Record struct {
	ID         int64  `mapstructure:"id" json:"id"`
	Name       string `mapstructure:"name" json:"name"`
	TaxpayerID string `mapstructure:"taxpayer_id" json:"taxpayer_id"`
	Year       int    `mapstructure:"year" json:"year"`
	Data       any    `mapstructure:"data" json:"data"`
}

// Store looks up form records
type Store interface {
	Get(ctx context.Context, taxpayerID string, year int, id int64) (*Record, error)
}

// FileStore reads records from <dir>/<taxpayer>/<year>/<id>.json
type FileStore struct {
	root *security.Root
}

// NewFileStore creates a store rooted at dir
func NewFileStore(dir string) (*FileStore, error) {
	root, err := security.NewRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid records directory: %w", err)
	}
	return &FileStore{root: root}, nil
}

// Get loads a record. The taxpayer and year in the file, when present, must
// match the lookup keys.
func (s *FileStore) Get(ctx context.Context, taxpayerID string, year int, id int64) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if taxpayerID == "" || filepath.Base(taxpayerID) != taxpayerID || taxpayerID == ".." {
		return nil, fmt.Errorf("%w: taxpayer id %q", ErrInvalidKey, taxpayerID)
	}

	rel := filepath.Join(taxpayerID, strconv.Itoa(year), strconv.FormatInt(id, 10)+".json")
	path, err := s.root.Resolve(rel)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: taxpayer %s, year %d, id %d", ErrNotFound, taxpayerID, year, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record: %w", err)
	}

	rec, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode record %s: %w", rel, err)
	}

	if rec.ID == 0 {
		rec.ID = id
	}
	if rec.TaxpayerID == "" {
		rec.TaxpayerID = taxpayerID
	}
	if rec.Year == 0 {
		rec.Year = year
	}
	if rec.ID != id || rec.TaxpayerID != taxpayerID || rec.Year != year {
		return nil, fmt.Errorf("%w: record file %s belongs to taxpayer %s, year %d, id %d",
			ErrNotFound, rel, rec.TaxpayerID, rec.Year, rec.ID)
	}
	return rec, nil
}

func decode(data []byte) (*Record, error) {
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}

	var rec Record
	md, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &rec,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := md.Decode(raw); err != nil {
		return nil, err
	}
	return &rec, nil
}
