package controller

import (
	"errors"
	"fmt"

	"github.com/zot/supplies/internal/supply"
)

// ErrNotFound is returned for operations naming an unknown record id.
var ErrNotFound = errors.New("record not found")

// Validator checks record fields before they reach the controller.
type Validator interface {
	Validate(supply.Fields) error
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(supply.Fields) error

// Validate calls f.
func (f ValidatorFunc) Validate(fields supply.Fields) error {
	return f(fields)
}

// Service is the entry point surfaces use. It validates input the way a
// form would, then runs the controller operation on the executor so
// concurrent requests are applied one at a time.
type Service struct {
	ctrl       *Controller
	exec       *Executor
	validators []Validator
}

// NewService wraps ctrl. Fields.Validate always runs first, followed by
// any extra validators in order.
func NewService(ctrl *Controller, validators ...Validator) *Service {
	vs := append([]Validator{ValidatorFunc(supply.Fields.Validate)}, validators...)
	return &Service{
		ctrl:       ctrl,
		exec:       NewExecutor(),
		validators: vs,
	}
}

// Close stops the executor.
func (s *Service) Close() {
	s.exec.Close()
}

func (s *Service) validate(fields supply.Fields) error {
	for _, v := range s.validators {
		if err := v.Validate(fields); err != nil {
			return err
		}
	}
	return nil
}

// Load runs the startup load.
func (s *Service) Load() error {
	return s.exec.Do(s.ctrl.Load)
}

// Add validates fields and adds a record.
func (s *Service) Add(fields supply.Fields) (supply.Record, error) {
	if err := s.validate(fields); err != nil {
		return supply.Record{}, err
	}
	return Call(s.exec, func() supply.Record { return s.ctrl.AddRecord(fields) })
}

// Update validates r and replaces the stored record with the same id.
func (s *Service) Update(r supply.Record) error {
	if err := s.validate(r.Fields); err != nil {
		return err
	}
	var found bool
	err := s.exec.Do(func() {
		if _, found = s.ctrl.Find(r.ID); found {
			s.ctrl.UpdateRecord(r)
		}
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotFound, r.ID)
	}
	return nil
}

// Delete removes the record with id. Unknown ids are not an error.
func (s *Service) Delete(id string) error {
	return s.exec.Do(func() { s.ctrl.DeleteRecord(id) })
}

// BeginEdit starts editing the stored record with id and returns it.
func (s *Service) BeginEdit(id string) (supply.Record, error) {
	var r supply.Record
	var found bool
	err := s.exec.Do(func() {
		if r, found = s.ctrl.Find(id); found {
			s.ctrl.BeginEdit(r)
		}
	})
	if err != nil {
		return supply.Record{}, err
	}
	if !found {
		return supply.Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, nil
}

// CancelEdit clears the in-progress edit.
func (s *Service) CancelEdit() error {
	return s.exec.Do(s.ctrl.CancelEdit)
}

// ChangeSource reports a collection written by another process.
type ChangeSource interface {
	Changed() ([]supply.Record, bool)
}

// Reload applies a foreign change from src, if there is one. The check and
// the replace run as a single executor task so no local mutation can land
// between them.
func (s *Service) Reload(src ChangeSource) (bool, error) {
	var changed bool
	err := s.exec.Do(func() {
		var records []supply.Record
		if records, changed = src.Changed(); changed {
			s.ctrl.Replace(records)
		}
	})
	return changed, err
}

// Patch applies fn to the fields of the stored record with id and saves
// the result. Reading, patching and writing happen in one executor task.
func (s *Service) Patch(id string, fn func(*supply.Fields) error) (supply.Record, error) {
	var r supply.Record
	var found bool
	var patchErr error
	err := s.exec.Do(func() {
		if r, found = s.ctrl.Find(id); !found {
			return
		}
		if patchErr = fn(&r.Fields); patchErr != nil {
			return
		}
		if patchErr = s.validate(r.Fields); patchErr != nil {
			return
		}
		s.ctrl.UpdateRecord(r)
	})
	switch {
	case err != nil:
		return supply.Record{}, err
	case !found:
		return supply.Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	case patchErr != nil:
		return supply.Record{}, patchErr
	}
	return r, nil
}

// Import validates every record and replaces the collection with them.
func (s *Service) Import(records []supply.Record) error {
	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("%w: record without id", supply.ErrInvalidRecord)
		}
		if err := s.validate(r.Fields); err != nil {
			return fmt.Errorf("record %s: %w", r.ID, err)
		}
	}
	return s.exec.Do(func() { s.ctrl.Import(records) })
}

// Snapshot returns the current state.
func (s *Service) Snapshot() (Snapshot, error) {
	return Call(s.exec, s.ctrl.Snapshot)
}

// Records returns the collection in display order.
func (s *Service) Records() ([]supply.Record, error) {
	return Call(s.exec, s.ctrl.Records)
}

// Subscribe registers fn for change snapshots. fn runs on the executor
// and must not call back into the Service.
func (s *Service) Subscribe(fn func(Snapshot)) (func(), error) {
	unsubscribe, err := Call(s.exec, func() func() { return s.ctrl.Subscribe(fn) })
	if err != nil {
		return func() {}, err
	}
	return func() { _ = s.exec.Do(unsubscribe) }, nil
}
