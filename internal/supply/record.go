// Package supply defines the daily supply record and its ordering.
package supply

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidRecord is returned when record fields fail validation.
var ErrInvalidRecord = errors.New("invalid record")

// Fields holds everything a record carries except its id.
type Fields struct {
	Date   time.Time `json:"date" yaml:"date"`
	Tea    int       `json:"teaQuantity" yaml:"teaQuantity"`
	Samosa int       `json:"samosaQuantity" yaml:"samosaQuantity"`
	Snacks int       `json:"snacksQuantity" yaml:"snacksQuantity"`
}

// Record is one dated observation of supply quantities.
type Record struct {
	ID     string `json:"id" yaml:"id"`
	Fields `yaml:",inline"`
}

// fieldsJSON is the wire form of Fields with the date left as text.
type fieldsJSON struct {
	Date   string `json:"date"`
	Tea    int    `json:"teaQuantity"`
	Samosa int    `json:"samosaQuantity"`
	Snacks int    `json:"snacksQuantity"`
}

func (j fieldsJSON) fields() (Fields, error) {
	f := Fields{Tea: j.Tea, Samosa: j.Samosa, Snacks: j.Snacks}
	if j.Date == "" {
		return f, nil
	}
	date, err := ParseDate(j.Date)
	if err != nil {
		return Fields{}, err
	}
	f.Date = date
	return f, nil
}

// UnmarshalJSON accepts every date form ParseDate does. A missing date
// leaves Date zero for Validate to reject.
func (f *Fields) UnmarshalJSON(data []byte) error {
	var j fieldsJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	fields, err := j.fields()
	if err != nil {
		return err
	}
	*f = fields
	return nil
}

// UnmarshalJSON decodes the id alongside the fields.
func (r *Record) UnmarshalJSON(data []byte) error {
	var j struct {
		ID string `json:"id"`
		fieldsJSON
	}
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	fields, err := j.fields()
	if err != nil {
		return err
	}
	*r = Record{ID: j.ID, Fields: fields}
	return nil
}

// Validate checks that the date is set and no quantity is negative.
func (f Fields) Validate() error {
	if f.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidRecord)
	}
	for _, q := range []struct {
		name  string
		value int
	}{
		{"teaQuantity", f.Tea},
		{"samosaQuantity", f.Samosa},
		{"snacksQuantity", f.Snacks},
	} {
		if q.value < 0 {
			return fmt.Errorf("%w: %s must not be negative, got %d", ErrInvalidRecord, q.name, q.value)
		}
	}
	return nil
}

// NumericID returns the integer value of a record id. Ids that do not
// start with digits, or whose digits overflow int64, count as 0.
func NumericID(id string) int64 {
	digits := digitPrefix(id)
	if digits == "" {
		return 0
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// digitPrefix returns the leading digits of id without leading zeros.
func digitPrefix(id string) string {
	end := 0
	for end < len(id) && id[end] >= '0' && id[end] <= '9' {
		end++
	}
	return strings.TrimLeft(id[:end], "0")
}

// CompareIDs orders ids by the value of their leading digits. Values of
// any magnitude compare correctly.
func CompareIDs(a, b string) int {
	da, db := digitPrefix(a), digitPrefix(b)
	if c := cmp.Compare(len(da), len(db)); c != 0 {
		return c
	}
	return strings.Compare(da, db)
}

// Compare orders records newest first: descending by date, then
// descending by numeric id.
func Compare(a, b Record) int {
	if c := b.Date.Compare(a.Date); c != 0 {
		return c
	}
	return CompareIDs(b.ID, a.ID)
}

// Sort puts records in display order in place.
func Sort(records []Record) {
	slices.SortStableFunc(records, Compare)
}

// IsSorted reports whether records are in display order.
func IsSorted(records []Record) bool {
	return slices.IsSortedFunc(records, Compare)
}

// Index returns the position of the record with the given id, or -1.
func Index(records []Record, id string) int {
	return slices.IndexFunc(records, func(r Record) bool { return r.ID == id })
}

// Clone returns a copy of records that shares no backing array.
func Clone(records []Record) []Record {
	if records == nil {
		return []Record{}
	}
	return slices.Clone(records)
}

// Dedupe drops records whose id was already seen, keeping the first.
// It returns the filtered slice and the ids that were dropped.
func Dedupe(records []Record) ([]Record, []string) {
	seen := make(map[string]bool, len(records))
	var dropped []string
	out := records[:0:0]
	for _, r := range records {
		if seen[r.ID] {
			dropped = append(dropped, r.ID)
			continue
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	return out, dropped
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	time.DateOnly,
}

// ParseDate accepts an RFC 3339 timestamp, a local date-time without
// zone, or a bare date. Values without a zone are read as UTC.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: cannot parse date %q", ErrInvalidRecord, s)
}
