package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/conneroisu/reactive/internal/errors"
	"github.com/conneroisu/reactive/internal/logging"
	"github.com/conneroisu/reactive/internal/registry"
)

// Persister saves registry stores as repository records, one record per
// store keyed by the store name. Only object stores can be persisted. The
// record's id member is owned by the persister and never reaches the store.
type Persister struct {
	stores *registry.StoreRegistry
	repo   Repository
	logger logging.Logger

	mu      sync.Mutex
	tracked map[string]bool
	dirty   map[string]bool
}

// NewPersister creates a persister writing stores into repo.
func NewPersister(stores *registry.StoreRegistry, repo Repository, logger logging.Logger) *Persister {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Persister{
		stores:  stores,
		repo:    repo,
		logger:  logger.WithComponent("persister"),
		tracked: make(map[string]bool),
		dirty:   make(map[string]bool),
	}
}

// Restore registers the store name from its saved record, or from initial
// when nothing was saved yet, and tracks it for saving.
func (p *Persister) Restore(ctx context.Context, name string, initial map[string]any) error {
	data := initial
	record, err := p.repo.Read(ctx, name)
	switch {
	case err == nil:
		delete(record, IDField)
		data = record
		p.logger.Debug(ctx, "Restored store", "store", name)
	case errors.IsNotFound(err):
	default:
		return errors.NewRepositoryError(errors.ErrCodeRequestFailed, "restoring store", err).WithStore(name)
	}
	if data == nil {
		data = map[string]any{}
	}

	if err := p.stores.Create(name, data); err != nil {
		return err
	}

	p.mu.Lock()
	p.tracked[name] = true
	if record == nil {
		p.dirty[name] = true
	}
	p.mu.Unlock()
	return nil
}

// Tracked returns the persisted store names in sorted order.
func (p *Persister) Tracked() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.tracked))
	for name := range p.tracked {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run marks tracked stores dirty as they change and flushes every interval.
// It flushes once more when ctx is done and returns the last flush error.
func (p *Persister) Run(ctx context.Context, interval time.Duration) error {
	events := p.stores.Watch()
	defer p.stores.UnWatch(events)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-events:
			if !ok {
				return p.Flush(context.WithoutCancel(ctx))
			}
			p.mu.Lock()
			if p.tracked[e.Store] {
				p.dirty[e.Store] = true
			}
			p.mu.Unlock()
		case <-ticker.C:
			if err := p.Flush(ctx); err != nil {
				p.logger.Warn(ctx, err, "Persisting stores failed")
			}
		case <-ctx.Done():
			return p.Flush(context.WithoutCancel(ctx))
		}
	}
}

// Flush saves every dirty store. Stores that fail stay dirty.
func (p *Persister) Flush(ctx context.Context) error {
	p.mu.Lock()
	names := make([]string, 0, len(p.dirty))
	for name := range p.dirty {
		names = append(names, name)
	}
	p.dirty = make(map[string]bool)
	p.mu.Unlock()
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		if err := p.save(ctx, name); err != nil {
			errs = append(errs, err)
			p.mu.Lock()
			p.dirty[name] = true
			p.mu.Unlock()
		}
	}
	return errors.CombineErrors(errs...)
}

func (p *Persister) save(ctx context.Context, name string) error {
	snapshot, err := p.stores.Snapshot(name)
	if err != nil {
		return err
	}
	record, ok := snapshot.(map[string]any)
	if !ok {
		return errors.NewValidationError(errors.ErrCodeValidationFailed, "only object stores can be persisted").
			WithStore(name)
	}
	record[IDField] = name

	exists, err := p.repo.Exists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		_, err = p.repo.Update(ctx, name, record)
	} else {
		_, err = p.repo.Create(ctx, record)
	}
	if err != nil {
		return err
	}
	p.logger.Debug(ctx, "Persisted store", "store", name)
	return nil
}
