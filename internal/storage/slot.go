package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/zot/supplies/internal/supply"
)

// DefaultKey is the slot key the record collection is stored under.
const DefaultKey = "officeSupplyRecords"

// Slot stores the whole record collection as one JSON value under a
// fixed key. Read and write failures are logged and swallowed: Load
// reports absence, Save returns nothing.
type Slot struct {
	backend Backend
	key     string
	log     *zap.Logger

	mu        sync.Mutex
	lastBlob  []byte
	lastFault error
}

// NewSlot creates a slot adapter over backend. An empty key means DefaultKey.
func NewSlot(backend Backend, key string, log *zap.Logger) *Slot {
	if key == "" {
		key = DefaultKey
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Slot{
		backend: backend,
		key:     key,
		log:     log.Named("slot").With(zap.String("key", key)),
	}
}

// Key returns the slot key.
func (s *Slot) Key() string {
	return s.key
}

// Load reads and decodes the stored collection. ok is false when the key
// is absent, the value is malformed, or the backend fails.
func (s *Slot) Load() (records []supply.Record, ok bool) {
	blob, err := s.backend.Get(s.key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.log.Debug("no saved records")
		} else {
			s.fault(err)
			s.log.Warn("failed to load records", zap.Error(err))
		}
		return nil, false
	}
	records, err = decode(blob)
	if err != nil {
		s.fault(err)
		s.log.Warn("failed to decode saved records", zap.Error(err), zap.Int("bytes", len(blob)))
		return nil, false
	}

	s.mu.Lock()
	s.lastBlob = blob
	s.mu.Unlock()

	s.log.Debug("loaded records", zap.Int("count", len(records)))
	return records, true
}

// Save encodes records and overwrites the slot.
func (s *Slot) Save(records []supply.Record) {
	if records == nil {
		records = []supply.Record{}
	}
	blob, err := json.Marshal(records)
	if err != nil {
		s.fault(err)
		s.log.Error("failed to encode records", zap.Error(err))
		return
	}
	if err := s.backend.Put(s.key, blob); err != nil {
		s.fault(err)
		s.log.Error("failed to save records", zap.Error(err), zap.Int("count", len(records)))
		return
	}

	s.mu.Lock()
	s.lastBlob = blob
	s.lastFault = nil
	s.mu.Unlock()

	s.log.Debug("saved records", zap.Int("count", len(records)))
}

// Changed reports a collection written to the slot by someone else.
// It returns false when the stored value is what this slot last read or
// wrote, or when it cannot be read.
func (s *Slot) Changed() ([]supply.Record, bool) {
	blob, err := s.backend.Get(s.key)
	if err != nil {
		return nil, false
	}

	s.mu.Lock()
	same := bytes.Equal(blob, s.lastBlob)
	s.mu.Unlock()
	if same {
		return nil, false
	}

	records, err := decode(blob)
	if err != nil {
		s.log.Warn("ignoring malformed external change", zap.Error(err))
		return nil, false
	}

	s.mu.Lock()
	s.lastBlob = blob
	s.mu.Unlock()
	return records, true
}

// LastError returns the most recent failure, cleared by a successful Save.
func (s *Slot) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFault
}

func (s *Slot) fault(err error) {
	s.mu.Lock()
	s.lastFault = err
	s.mu.Unlock()
}

func decode(blob []byte) ([]supply.Record, error) {
	var records []supply.Record
	if len(bytes.TrimSpace(blob)) == 0 {
		return nil, errors.New("empty value")
	}
	if err := json.Unmarshal(blob, &records); err != nil {
		return nil, err
	}
	if records == nil {
		records = []supply.Record{}
	}
	return records, nil
}
