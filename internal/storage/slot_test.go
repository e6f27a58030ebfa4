package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/zot/supplies/internal/supply"
)

// failingBackend fails every operation
type failingBackend struct{ err error }

func (f failingBackend) Get(string) ([]byte, error)  { return nil, f.err }
func (f failingBackend) Put(string, []byte) error    { return f.err }
func (f failingBackend) Delete(string) error         { return f.err }
func (f failingBackend) Keys() ([]string, error)     { return nil, f.err }
func (f failingBackend) Close() error                { return nil }

func sampleRecords() []supply.Record {
	return []supply.Record{
		{ID: "1704153600000", Fields: supply.Fields{Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Tea: 1, Snacks: 3}},
		{ID: "1704067200000", Fields: supply.Fields{Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Tea: 2, Samosa: 1}},
	}
}

// TestSlotRoundTrip verifies save then load yields equal content
func TestSlotRoundTrip(t *testing.T) {
	slot := NewSlot(NewMemoryStorage(), "", nil)
	assert.Equal(t, DefaultKey, slot.Key())

	want := sampleRecords()
	slot.Save(want)

	got, ok := slot.Load()
	require.True(t, ok)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

// TestSlotEmptyCollection verifies an empty collection stores as an empty array
func TestSlotEmptyCollection(t *testing.T) {
	backend := NewMemoryStorage()
	slot := NewSlot(backend, "k", nil)

	slot.Save(nil)
	blob, err := backend.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(blob))

	got, ok := slot.Load()
	assert.True(t, ok)
	assert.Empty(t, got)
}

// TestSlotAbsent verifies a missing key reports absence without logging a warning
func TestSlotAbsent(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	slot := NewSlot(NewMemoryStorage(), "k", zap.New(core))

	got, ok := slot.Load()
	assert.False(t, ok)
	assert.Nil(t, got)
	assert.Equal(t, 0, logs.Len())
	assert.NoError(t, slot.LastError())
}

// TestSlotMalformed verifies malformed data reports absence and is logged
func TestSlotMalformed(t *testing.T) {
	for _, blob := range []string{`{not json`, `{"id":"1"}`, ``, `   `} {
		backend := NewMemoryStorage()
		require.NoError(t, backend.Put("k", []byte(blob)))

		core, logs := observer.New(zap.WarnLevel)
		slot := NewSlot(backend, "k", zap.New(core))

		_, ok := slot.Load()
		assert.False(t, ok, "blob %q should not load", blob)
		assert.Equal(t, 1, logs.Len(), "blob %q should log one warning", blob)
		assert.Error(t, slot.LastError())
	}
}

// TestSlotBackendFailure verifies failures are swallowed and logged
func TestSlotBackendFailure(t *testing.T) {
	boom := errors.New("quota exceeded")
	core, logs := observer.New(zap.WarnLevel)
	slot := NewSlot(failingBackend{err: boom}, "k", zap.New(core))

	_, ok := slot.Load()
	assert.False(t, ok)

	assert.NotPanics(t, func() { slot.Save(sampleRecords()) })
	assert.Equal(t, 2, logs.Len())
	assert.ErrorIs(t, slot.LastError(), boom)
}

// TestSlotChanged verifies only foreign writes are reported
func TestSlotChanged(t *testing.T) {
	backend := NewMemoryStorage()
	slot := NewSlot(backend, "k", nil)

	slot.Save(sampleRecords())
	_, changed := slot.Changed()
	assert.False(t, changed, "own write is not a change")

	require.NoError(t, backend.Put("k", []byte(`[{"id":"5","date":"2024-02-01T00:00:00Z","teaQuantity":4,"samosaQuantity":0,"snacksQuantity":0}]`)))
	records, changed := slot.Changed()
	require.True(t, changed)
	require.Len(t, records, 1)
	assert.Equal(t, "5", records[0].ID)

	_, changed = slot.Changed()
	assert.False(t, changed, "same foreign write is reported once")

	require.NoError(t, backend.Put("k", []byte(`garbage`)))
	_, changed = slot.Changed()
	assert.False(t, changed, "malformed write is ignored")
}
