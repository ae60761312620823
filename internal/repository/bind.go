package repository

import (
	"context"
	"sync"

	"github.com/conneroisu/reactive/internal/errors"
	"github.com/conneroisu/reactive/internal/observable"
	"github.com/conneroisu/reactive/internal/types"
)

// Binding ties a repository record to an observable. Local edits mark the
// binding dirty until Save writes them back; Refresh pulls the stored
// record into the observable.
type Binding struct {
	repo Repository
	id   string
	obs  *observable.Observable

	mu       sync.Mutex
	dirty    bool
	applying bool
	listener *observable.FuncListener
}

// Bind reads record id from repo into a new observable.
func Bind(ctx context.Context, repo Repository, id string) (*Binding, error) {
	record, err := repo.Read(ctx, id)
	if err != nil {
		return nil, err
	}

	b := &Binding{repo: repo, id: id, obs: observable.New(record)}
	b.listener = observable.NewListener(func(types.ChangeEvent) {
		b.mu.Lock()
		if !b.applying {
			b.dirty = true
		}
		b.mu.Unlock()
	})
	b.obs.AddEventListener(types.EventChange, b.listener)
	return b, nil
}

// Observable returns the bound observable.
func (b *Binding) Observable() *observable.Observable { return b.obs }

// ID returns the bound record id.
func (b *Binding) ID() string { return b.id }

// Dirty reports whether the observable changed since the last Save or
// Refresh.
func (b *Binding) Dirty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dirty
}

// Save writes the observable back when it is dirty.
func (b *Binding) Save(ctx context.Context) error {
	if !b.Dirty() {
		return nil
	}

	record, ok := b.obs.Snapshot().(map[string]any)
	if !ok {
		return errors.NewValidationError(errors.ErrCodeValidationFailed, "bound observable root must be an object")
	}
	if _, err := b.repo.Update(ctx, b.id, record); err != nil {
		return err
	}

	b.mu.Lock()
	b.dirty = false
	b.mu.Unlock()
	return nil
}

// Refresh replaces the observable content with the stored record. Only the
// fields that differ emit change events.
func (b *Binding) Refresh(ctx context.Context) error {
	record, err := b.repo.Read(ctx, b.id)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.applying = true
	b.mu.Unlock()

	b.obs.Reset(record)

	b.mu.Lock()
	b.applying = false
	b.dirty = false
	b.mu.Unlock()
	return nil
}

// Close stops tracking changes.
func (b *Binding) Close() {
	b.obs.RemoveEventListener(types.EventChange, b.listener)
}
