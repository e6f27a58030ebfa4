package controller

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/zot/supplies/internal/storage"
	"github.com/zot/supplies/internal/supply"
)

// TestExecutorSerializes verifies tasks never overlap
func TestExecutorSerializes(t *testing.T) {
	defer goleak.VerifyNone(t)

	e := NewExecutor()
	defer e.Close()

	var active, maxActive, total int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, e.Do(func() {
				active++
				if active > maxActive {
					maxActive = active
				}
				total++
				active--
			}))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive)
	assert.Equal(t, 50, total)
}

// TestExecutorClosed verifies a closed executor refuses work
func TestExecutorClosed(t *testing.T) {
	defer goleak.VerifyNone(t)

	e := NewExecutor()
	e.Close()
	e.Close()

	assert.ErrorIs(t, e.Do(func() {}), ErrClosed)
	_, err := Call(e, func() int { return 1 })
	assert.ErrorIs(t, err, ErrClosed)
}

// TestExecutorRecoversPanic verifies a panicking task does not kill the executor
func TestExecutorRecoversPanic(t *testing.T) {
	defer goleak.VerifyNone(t)

	e := NewExecutor()
	defer e.Close()

	err := e.Do(func() { panic("boom") })
	assert.ErrorContains(t, err, "boom")

	v, err := Call(e, func() int { return 42 })
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func newService(t *testing.T, validators ...Validator) (*Service, *memStore) {
	t.Helper()
	store := &memStore{}
	svc := NewService(New(store), validators...)
	t.Cleanup(svc.Close)
	require.NoError(t, svc.Load())
	return svc, store
}

// TestServiceValidates verifies validators run before anything is saved
func TestServiceValidates(t *testing.T) {
	noSamosa := ValidatorFunc(func(f supply.Fields) error {
		if f.Samosa > 5 {
			return errors.New("too many samosas")
		}
		return nil
	})
	svc, store := newService(t, noSamosa)

	_, err := svc.Add(supply.Fields{Date: date(2024, 1, 1), Tea: -1})
	assert.ErrorIs(t, err, supply.ErrInvalidRecord)

	_, err = svc.Add(supply.Fields{Date: date(2024, 1, 1), Samosa: 6})
	assert.ErrorContains(t, err, "too many samosas")

	assert.Equal(t, 0, store.saves, "rejected input must not reach the store")

	r, err := svc.Add(supply.Fields{Date: date(2024, 1, 1), Samosa: 2})
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, 1, store.saves)
}

// TestServiceUpdateAndEdit verifies update and edit against known and unknown ids
func TestServiceUpdateAndEdit(t *testing.T) {
	svc, _ := newService(t)

	r, err := svc.Add(supply.Fields{Date: date(2024, 1, 1), Tea: 1})
	require.NoError(t, err)

	edited, err := svc.BeginEdit(r.ID)
	require.NoError(t, err)
	assert.Equal(t, r, edited)

	snap, err := svc.Snapshot()
	require.NoError(t, err)
	require.NotNil(t, snap.Editing)
	assert.Equal(t, r.ID, snap.Editing.ID)
	assert.False(t, snap.Loading)

	r.Tea = 5
	require.NoError(t, svc.Update(r))

	snap, err = svc.Snapshot()
	require.NoError(t, err)
	assert.Nil(t, snap.Editing)
	assert.Equal(t, 5, snap.Records[0].Tea)

	assert.ErrorIs(t, svc.Update(supply.Record{ID: "missing", Fields: supply.Fields{Date: date(2024, 1, 1)}}), ErrNotFound)
	_, err = svc.BeginEdit("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, svc.Delete("missing"))
	require.NoError(t, svc.Delete(r.ID))
	records, err := svc.Records()
	require.NoError(t, err)
	assert.Empty(t, records)
}

// TestServiceImportValidation verifies imports are all-or-nothing
func TestServiceImportValidation(t *testing.T) {
	svc, store := newService(t)

	err := svc.Import([]supply.Record{{Fields: supply.Fields{Date: date(2024, 1, 1)}}})
	assert.ErrorIs(t, err, supply.ErrInvalidRecord)

	err = svc.Import([]supply.Record{{ID: "1", Fields: supply.Fields{Date: date(2024, 1, 1), Snacks: -4}}})
	assert.ErrorIs(t, err, supply.ErrInvalidRecord)
	assert.Equal(t, 0, store.saves)

	require.NoError(t, svc.Import([]supply.Record{{ID: "1", Fields: supply.Fields{Date: date(2024, 1, 1)}}}))
	assert.Equal(t, 1, store.saves)
}

// TestServiceSubscribe verifies subscribers see changes until they unsubscribe
func TestServiceSubscribe(t *testing.T) {
	svc, _ := newService(t)

	var mu sync.Mutex
	var count int
	unsubscribe, err := svc.Subscribe(func(Snapshot) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	require.NoError(t, err)

	_, err = svc.Add(supply.Fields{Date: date(2024, 1, 1)})
	require.NoError(t, err)
	require.NoError(t, svc.CancelEdit()) // nothing to cancel
	unsubscribe()
	_, err = svc.Add(supply.Fields{Date: date(2024, 1, 2)})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}

// changeFunc adapts a function to ChangeSource
type changeFunc func() ([]supply.Record, bool)

func (f changeFunc) Changed() ([]supply.Record, bool) { return f() }

const foreignBlob = `[{"id":"1","date":"2024-01-01T00:00:00Z","teaQuantity":9,"samosaQuantity":0,"snacksQuantity":0}]`

// TestServiceReloadKeepsConcurrentAdd verifies an add racing a reload is
// kept in memory and in the slot
func TestServiceReloadKeepsConcurrentAdd(t *testing.T) {
	backend := storage.NewMemoryStorage()
	slot := storage.NewSlot(backend, "", nil)
	svc := NewService(New(slot))
	t.Cleanup(svc.Close)
	require.NoError(t, svc.Load())

	require.NoError(t, backend.Put(storage.DefaultKey, []byte(foreignBlob)))

	added := make(chan supply.Record, 1)
	source := changeFunc(func() ([]supply.Record, bool) {
		records, ok := slot.Changed()
		go func() {
			r, err := svc.Add(supply.Fields{Date: date(2024, 1, 2), Tea: 1})
			assert.NoError(t, err)
			added <- r
		}()
		return records, ok
	})

	changed, err := svc.Reload(source)
	require.NoError(t, err)
	assert.True(t, changed)
	r := <-added

	records, err := svc.Records()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, r.ID, records[0].ID)
	assert.Equal(t, "1", records[1].ID)

	stored, ok := slot.Load()
	require.True(t, ok)
	if diff := cmp.Diff(records, stored); diff != "" {
		t.Errorf("memory and slot disagree (-memory +slot):\n%s", diff)
	}

	changed, err = svc.Reload(slot)
	require.NoError(t, err)
	assert.False(t, changed, "own save is not a foreign change")
}

// TestServiceReloadAfterLocalSave verifies a local save that overwrote a
// foreign write leaves nothing to reload
func TestServiceReloadAfterLocalSave(t *testing.T) {
	backend := storage.NewMemoryStorage()
	slot := storage.NewSlot(backend, "", nil)
	svc := NewService(New(slot))
	t.Cleanup(svc.Close)
	require.NoError(t, svc.Load())

	require.NoError(t, backend.Put(storage.DefaultKey, []byte(foreignBlob)))
	r, err := svc.Add(supply.Fields{Date: date(2024, 1, 2), Tea: 1})
	require.NoError(t, err)

	changed, err := svc.Reload(slot)
	require.NoError(t, err)
	assert.False(t, changed)

	records, err := svc.Records()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, r.ID, records[0].ID)
	stored, _ := slot.Load()
	assert.Empty(t, cmp.Diff(records, stored))
}

// TestServicePatch verifies patches merge into the stored fields and are validated
func TestServicePatch(t *testing.T) {
	svc, store := newService(t)

	r, err := svc.Add(supply.Fields{Date: date(2024, 1, 1), Tea: 2, Samosa: 1})
	require.NoError(t, err)

	// A concurrent update between read and write must not be lost
	require.NoError(t, svc.Update(supply.Record{ID: r.ID, Fields: supply.Fields{Date: date(2024, 1, 1), Tea: 2, Samosa: 7}}))
	patched, err := svc.Patch(r.ID, func(f *supply.Fields) error {
		f.Snacks = 3
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, supply.Fields{Date: date(2024, 1, 1), Tea: 2, Samosa: 7, Snacks: 3}, patched.Fields)

	records, err := svc.Records()
	require.NoError(t, err)
	assert.Equal(t, patched, records[0])

	saves := store.saves
	_, err = svc.Patch(r.ID, func(f *supply.Fields) error {
		f.Tea = -1
		return nil
	})
	assert.ErrorIs(t, err, supply.ErrInvalidRecord)

	boom := errors.New("boom")
	_, err = svc.Patch(r.ID, func(*supply.Fields) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, saves, store.saves, "failed patches are not saved")

	_, err = svc.Patch("missing", func(*supply.Fields) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)
}
