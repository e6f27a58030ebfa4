// Package controller holds the in-memory record collection and the
// in-progress edit, and mirrors every change to the store slot.
package controller

import (
	"go.uber.org/zap"

	"github.com/zot/supplies/internal/supply"
)

// Store is the persistence contract the controller needs. Load reports
// absence or failure with ok=false; Save never fails from the caller's view.
type Store interface {
	Load() (records []supply.Record, ok bool)
	Save(records []supply.Record)
}

// Snapshot is the state presentation surfaces render.
type Snapshot struct {
	Records []supply.Record `json:"records"`
	Editing *supply.Record  `json:"editing"`
	Loading bool            `json:"loading"`
}

// Controller is the single owner of the record collection. It is not
// safe for concurrent use; run it behind an Executor.
type Controller struct {
	store     Store
	ids       *supply.IDGenerator
	log       *zap.Logger
	records   []supply.Record
	editing   *supply.Record
	loading   bool
	listeners map[int]func(Snapshot)
	nextSub   int
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// WithIDGenerator replaces the default time-based id generator.
func WithIDGenerator(ids *supply.IDGenerator) Option {
	return func(c *Controller) { c.ids = ids }
}

// New creates a controller in the loading state. Call Load before use;
// nothing is persisted until loading has finished.
func New(store Store, opts ...Option) *Controller {
	c := &Controller{
		store:     store,
		records:   []supply.Record{},
		loading:   true,
		listeners: make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.ids == nil {
		c.ids = supply.NewIDGenerator(nil)
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	return c
}

// Load reads the saved collection, or starts empty when there is none.
func (c *Controller) Load() {
	records, ok := c.store.Load()
	if !ok {
		records = nil
	}
	c.records = c.normalize(records)
	c.ids.Observe(c.records)
	c.loading = false
	c.log.Debug("controller loaded", zap.Int("records", len(c.records)), zap.Bool("restored", ok))
	c.notify()
}

// AddRecord clears any edit, creates a record with a fresh id, inserts
// it in order and persists. The new record is returned.
func (c *Controller) AddRecord(fields supply.Fields) supply.Record {
	c.editing = nil
	r := supply.Record{ID: c.ids.Next(), Fields: fields}
	c.records = append(c.records, r)
	supply.Sort(c.records)
	c.log.Debug("record added", zap.String("id", r.ID))
	c.changed()
	return r
}

// UpdateRecord replaces the record with the same id, re-sorts, clears
// the edit and persists. An unknown id leaves the collection as it was.
func (c *Controller) UpdateRecord(r supply.Record) {
	if i := supply.Index(c.records, r.ID); i >= 0 {
		c.records[i] = r
		supply.Sort(c.records)
		c.log.Debug("record updated", zap.String("id", r.ID))
	} else {
		c.log.Debug("update for unknown record", zap.String("id", r.ID))
	}
	c.editing = nil
	c.changed()
}

// DeleteRecord removes the record with id, clearing the edit if it
// targeted that record, and persists. An unknown id changes nothing.
func (c *Controller) DeleteRecord(id string) {
	if c.editing != nil && c.editing.ID == id {
		c.editing = nil
	}
	if i := supply.Index(c.records, id); i >= 0 {
		c.records = append(c.records[:i:i], c.records[i+1:]...)
		c.log.Debug("record deleted", zap.String("id", id))
	}
	c.changed()
}

// BeginEdit marks a copy of r as the in-progress edit.
func (c *Controller) BeginEdit(r supply.Record) {
	c.editing = &r
	c.notify()
}

// CancelEdit clears the in-progress edit.
func (c *Controller) CancelEdit() {
	if c.editing == nil {
		return
	}
	c.editing = nil
	c.notify()
}

// Replace swaps in a collection that was changed outside this process.
// It is not persisted. The edit survives only if its record still exists.
func (c *Controller) Replace(records []supply.Record) {
	c.records = c.normalize(records)
	c.ids.Observe(c.records)
	if c.editing != nil && supply.Index(c.records, c.editing.ID) < 0 {
		c.editing = nil
	}
	c.notify()
}

// Import replaces the whole collection, clears the edit and persists.
func (c *Controller) Import(records []supply.Record) {
	c.records = c.normalize(records)
	c.ids.Observe(c.records)
	c.editing = nil
	c.changed()
}

// Records returns a copy of the collection in display order.
func (c *Controller) Records() []supply.Record {
	return supply.Clone(c.records)
}

// Find returns the record with id.
func (c *Controller) Find(id string) (supply.Record, bool) {
	if i := supply.Index(c.records, id); i >= 0 {
		return c.records[i], true
	}
	return supply.Record{}, false
}

// Editing returns the in-progress edit, if any.
func (c *Controller) Editing() (supply.Record, bool) {
	if c.editing == nil {
		return supply.Record{}, false
	}
	return *c.editing, true
}

// Loading reports whether Load has not yet run.
func (c *Controller) Loading() bool {
	return c.loading
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	s := Snapshot{Records: c.Records(), Loading: c.loading}
	if c.editing != nil {
		e := *c.editing
		s.Editing = &e
	}
	return s
}

// Subscribe registers fn to receive a snapshot after every change.
// The returned function removes the subscription.
func (c *Controller) Subscribe(fn func(Snapshot)) func() {
	id := c.nextSub
	c.nextSub++
	c.listeners[id] = fn
	return func() { delete(c.listeners, id) }
}

func (c *Controller) normalize(records []supply.Record) []supply.Record {
	out, dropped := supply.Dedupe(supply.Clone(records))
	if len(dropped) > 0 {
		c.log.Warn("dropped records with duplicate ids", zap.Strings("ids", dropped))
	}
	if out == nil {
		out = []supply.Record{}
	}
	supply.Sort(out)
	return out
}

// changed persists and notifies after a mutation.
func (c *Controller) changed() {
	if !c.loading {
		c.store.Save(c.Records())
	}
	c.notify()
}

func (c *Controller) notify() {
	if len(c.listeners) == 0 {
		return
	}
	s := c.Snapshot()
	for _, fn := range c.listeners {
		fn(s)
	}
}
