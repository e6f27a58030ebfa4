package cli

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/zot/supplies/internal/config"
	"github.com/zot/supplies/internal/controller"
	"github.com/zot/supplies/internal/rules"
	"github.com/zot/supplies/internal/storage"
)

// App is a loaded ledger: the configured backend, the slot adapter over it
// and the record service every command talks to.
type App struct {
	Config  *config.Config
	Log     *zap.Logger
	Backend storage.Backend
	Slot    *storage.Slot
	Service *controller.Service

	script  *rules.Script
	watcher *storage.Watcher
}

// Open builds the ledger described by cfg and loads the stored collection.
func Open(cfg *config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	backend, err := storage.Open(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Type, err)
	}
	a := &App{Config: cfg, Log: log, Backend: backend}

	var validators []controller.Validator
	if cfg.Rules.Path != "" {
		a.script, err = rules.Load(cfg.Rules.Path)
		if err != nil {
			backend.Close()
			return nil, err
		}
		validators = append(validators, a.script)
		log.Info("validation rules loaded", zap.String("path", cfg.Rules.Path))
	}

	a.Slot = storage.NewSlot(backend, cfg.Storage.Key, log)
	ctrl := controller.New(a.Slot, controller.WithLogger(log))
	a.Service = controller.NewService(ctrl, validators...)
	if err := a.Service.Load(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Watch reloads the collection when another process rewrites the slot
// file. Only file storage can be watched.
func (a *App) Watch() error {
	files, ok := a.Backend.(*storage.FileStorage)
	if !ok {
		return fmt.Errorf("watch requires file storage, have %q", a.Config.Storage.Type)
	}
	w, err := storage.NewWatcher(files, a.Slot, a.Log, func() {
		changed, err := a.Service.Reload(a.Slot)
		if err != nil {
			a.Log.Warn("apply external change", zap.Error(err))
			return
		}
		if changed {
			a.Log.Info("slot changed on disk")
		}
	})
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	a.watcher = w
	a.Log.Info("watching for external changes", zap.String("path", files.Path(a.Slot.Key())))
	return nil
}

// Close stops the watcher and the service and releases the backend.
func (a *App) Close() error {
	var errs []error
	if a.watcher != nil {
		errs = append(errs, a.watcher.Stop())
	}
	if a.Service != nil {
		a.Service.Close()
	}
	if a.script != nil {
		a.script.Close()
	}
	errs = append(errs, a.Backend.Close())
	return errors.Join(errs...)
}
