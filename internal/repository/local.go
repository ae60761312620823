package repository

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/reactive/internal/errors"
	"github.com/conneroisu/reactive/internal/logging"
)

// LocalRepository keeps records in memory. When it has a file, every
// mutation rewrites the file as a YAML mapping of id to record.
type LocalRepository struct {
	mu      sync.RWMutex
	records map[string]Record
	file    string
	logger  logging.Logger
}

// NewLocalRepository opens the collection stored in dir/collection.yaml,
// loading existing records. An empty dir keeps records in memory only.
func NewLocalRepository(dir, collection string, logger logging.Logger) (*LocalRepository, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	repo := &LocalRepository{
		records: make(map[string]Record),
		logger:  logger.WithComponent("repository"),
	}
	if dir == "" {
		return repo, nil
	}
	if collection == "" {
		return nil, errors.NewValidationError(errors.ErrCodeValidationFailed, "collection name cannot be empty")
	}

	repo.file = filepath.Join(dir, collection+".yaml")
	if err := repo.load(); err != nil {
		return nil, err
	}
	return repo, nil
}

// File returns the backing file, or "" for an in-memory repository.
func (l *LocalRepository) File() string {
	return l.file
}

func (l *LocalRepository) load() error {
	data, err := os.ReadFile(l.file)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.WrapIO(err, errors.ErrCodeFileNotFound, "reading "+l.file)
	}

	var stored map[string]map[string]any
	if err := yaml.Unmarshal(data, &stored); err != nil {
		return errors.WrapValidation(err, errors.ErrCodeDecodeFailed, "invalid repository file "+l.file)
	}
	for id, record := range stored {
		l.records[id] = record
	}
	return nil
}

// persist rewrites the backing file through a temporary file. Callers hold
// the write lock.
func (l *LocalRepository) persist() error {
	if l.file == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.file), 0o755); err != nil {
		return errors.WrapIO(err, errors.ErrCodeInternalError, "creating repository directory")
	}

	data, err := yaml.Marshal(l.records)
	if err != nil {
		return errors.WrapValidation(err, errors.ErrCodeValidationFailed, "encoding records")
	}

	tmp := l.file + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.WrapIO(err, errors.ErrCodeInternalError, "writing "+tmp)
	}
	if err := os.Rename(tmp, l.file); err != nil {
		return errors.WrapIO(err, errors.ErrCodeInternalError, "replacing "+l.file)
	}
	return nil
}

// Exists reports whether id is stored.
func (l *LocalRepository) Exists(_ context.Context, id string) (bool, error) {
	if err := validateID(id); err != nil {
		return false, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.records[id]
	return ok, nil
}

// List returns every record ordered by id.
func (l *LocalRepository) List(_ context.Context) ([]Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := make([]string, 0, len(l.records))
	for id := range l.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	records := make([]Record, len(ids))
	for i, id := range ids {
		records[i] = cloneRecord(l.records[id])
	}
	return records, nil
}

// Create stores record under its id, generating a UUID when it has none.
// Creating an existing id fails.
func (l *LocalRepository) Create(ctx context.Context, record Record) (Record, error) {
	stored := cloneRecord(record)
	id := ID(stored)
	if id == "" {
		id = uuid.NewString()
	}
	stored[IDField] = id

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.records[id]; exists {
		return nil, errors.NewRepositoryError(errors.ErrCodeValidationFailed, "record already exists: "+id, nil).
			WithContext("id", id)
	}
	l.records[id] = stored
	if err := l.persist(); err != nil {
		delete(l.records, id)
		return nil, err
	}

	l.logger.Debug(ctx, "Record created", "id", id)
	return cloneRecord(stored), nil
}

// Read returns a copy of the record stored under id.
func (l *LocalRepository) Read(_ context.Context, id string) (Record, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	record, ok := l.records[id]
	if !ok {
		return nil, errors.ErrRecordNotFound(id)
	}
	return cloneRecord(record), nil
}

// Update replaces the record stored under id. The stored record always
// carries id, whatever record says.
func (l *LocalRepository) Update(ctx context.Context, id string, record Record) (Record, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	stored := cloneRecord(record)
	stored[IDField] = id

	l.mu.Lock()
	defer l.mu.Unlock()

	previous, ok := l.records[id]
	if !ok {
		return nil, errors.ErrRecordNotFound(id)
	}
	l.records[id] = stored
	if err := l.persist(); err != nil {
		l.records[id] = previous
		return nil, err
	}

	l.logger.Debug(ctx, "Record updated", "id", id)
	return cloneRecord(stored), nil
}

// Delete removes the record stored under id.
func (l *LocalRepository) Delete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	previous, ok := l.records[id]
	if !ok {
		return errors.ErrRecordNotFound(id)
	}
	delete(l.records, id)
	if err := l.persist(); err != nil {
		l.records[id] = previous
		return err
	}

	l.logger.Debug(ctx, "Record deleted", "id", id)
	return nil
}
