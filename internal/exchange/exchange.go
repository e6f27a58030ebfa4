// Package exchange reads and writes record collections as JSON or YAML
// files for backup and migration.
package exchange

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zot/supplies/internal/supply"
)

// Format is a file encoding.
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
)

// ErrUnknownFormat is returned for formats other than json and yaml.
var ErrUnknownFormat = errors.New("unknown format")

// ParseFormat accepts json, yaml and yml in any case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// FormatFromPath picks the format from the file extension, defaulting to JSON.
func FormatFromPath(path string) Format {
	if f, err := ParseFormat(filepath.Ext(path)); err == nil {
		return f
	}
	return JSON
}

// yamlRecord keeps dates readable in YAML output.
type yamlRecord struct {
	ID     string `yaml:"id"`
	Date   string `yaml:"date"`
	Tea    int    `yaml:"teaQuantity"`
	Samosa int    `yaml:"samosaQuantity"`
	Snacks int    `yaml:"snacksQuantity"`
}

// Export writes records to w.
func Export(w io.Writer, records []supply.Record, format Format) error {
	records = supply.Clone(records)
	switch format {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	case YAML:
		out := make([]yamlRecord, len(records))
		for i, r := range records {
			out[i] = yamlRecord{
				ID:     r.ID,
				Date:   r.Date.UTC().Format(time.RFC3339Nano),
				Tea:    r.Tea,
				Samosa: r.Samosa,
				Snacks: r.Snacks,
			}
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// Import reads a collection from r. Records come back in display order; ids
// and fields are not validated here.
func Import(r io.Reader, format Format) ([]supply.Record, error) {
	var records []supply.Record
	switch format {
	case JSON:
		if err := json.NewDecoder(r).Decode(&records); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	case YAML:
		var in []yamlRecord
		if err := yaml.NewDecoder(r).Decode(&in); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
		records = make([]supply.Record, len(in))
		for i, y := range in {
			date, err := supply.ParseDate(y.Date)
			if err != nil {
				return nil, fmt.Errorf("record %q: %w", y.ID, err)
			}
			records[i] = supply.Record{
				ID:     y.ID,
				Fields: supply.Fields{Date: date, Tea: y.Tea, Samosa: y.Samosa, Snacks: y.Snacks},
			}
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	records = supply.Clone(records)
	supply.Sort(records)
	return records, nil
}
