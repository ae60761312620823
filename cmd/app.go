package cmd

import (
	"context"
	"path/filepath"

	"github.com/conneroisu/reactive/internal/config"
	"github.com/conneroisu/reactive/internal/errors"
	"github.com/conneroisu/reactive/internal/i18n"
	"github.com/conneroisu/reactive/internal/logging"
	"github.com/conneroisu/reactive/internal/observable"
	"github.com/conneroisu/reactive/internal/registry"
	"github.com/conneroisu/reactive/internal/repository"
	"github.com/conneroisu/reactive/internal/router"
	"github.com/conneroisu/reactive/internal/types"
	"github.com/conneroisu/reactive/internal/watcher"
)

// storeCollection is the repository collection holding persisted stores.
const storeCollection = "stores"

// app holds the collaborators shared by the commands.
type app struct {
	cfg        *config.Config
	logger     logging.Logger
	stores     *registry.StoreRegistry
	translator *i18n.Translator
	router     *router.Router
	sync       *watcher.StoreSync
	persister  *repository.Persister
}

// newApp builds the collaborators for cfg and loads every configured store:
// from its file when it has one, otherwise from the store repository. The
// router location and the current language are registered as the built-in
// stores _location and _language. With a logger, every store change is
// logged at debug level.
func newApp(ctx context.Context, cfg *config.Config, logger logging.Logger) (*app, error) {
	translator, err := newTranslator(cfg, logger)
	if err != nil {
		return nil, err
	}
	r, err := router.New(cfg.Routes, logger)
	if err != nil {
		return nil, err
	}
	repo, err := newRepository(cfg, storeCollection, logger)
	if err != nil {
		return nil, err
	}

	stores := registry.NewStoreRegistry()
	a := &app{
		cfg:        cfg,
		logger:     logger,
		stores:     stores,
		translator: translator,
		router:     r,
		sync:       watcher.NewStoreSync(stores, logger),
		persister:  repository.NewPersister(stores, repo, logger),
	}

	for _, store := range cfg.Stores {
		if store.File != "" {
			err = a.sync.Track(store.Name, store.File)
		} else {
			err = a.persister.Restore(ctx, store.Name, store.Initial)
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, errors.ErrCodeConfigInvalid, "loading store "+store.Name).
				WithStore(store.Name)
		}
		if logger != nil {
			listener := logging.NewEventLogger(logger, store.Name)
			_ = stores.Update(store.Name, func(o *observable.Observable) error {
				o.AddEventListener(types.EventChange, listener)
				return nil
			})
		}
	}
	if err := r.Publish(stores, config.LocationStore); err != nil {
		return nil, err
	}
	if err := translator.Publish(stores, config.LanguageStore); err != nil {
		return nil, err
	}
	return a, nil
}

// watchFiles starts a file watcher over the directories of the stores
// configured with watch. It returns nil when no store is watched.
func (a *app) watchFiles(ctx context.Context) (*watcher.FileWatcher, error) {
	var dirs []string
	seen := make(map[string]bool)
	for _, store := range a.cfg.Stores {
		if store.File == "" || !store.Watch {
			continue
		}
		dir := filepath.Dir(filepath.Clean(store.File))
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	if len(dirs) == 0 {
		return nil, nil
	}
	return startWatcher(ctx, a.cfg.Watch, a.sync, dirs, a.logger)
}

func startWatcher(ctx context.Context, cfg config.WatchConfig, ss *watcher.StoreSync, dirs []string, logger logging.Logger) (*watcher.FileWatcher, error) {
	fw, err := watcher.NewFileWatcher(cfg.Debounce, logger)
	if err != nil {
		return nil, err
	}
	fw.AddFilter(watcher.NoTempFilter)
	fw.AddFilter(ss.Filter)
	fw.AddHandler(ss.HandleChanges)

	for _, dir := range dirs {
		if err := fw.AddPath(dir); err != nil {
			_ = fw.Stop()
			return nil, err
		}
	}
	if err := fw.Start(ctx); err != nil {
		_ = fw.Stop()
		return nil, err
	}
	return fw, nil
}

func newTranslator(cfg *config.Config, logger logging.Logger) (*i18n.Translator, error) {
	t, err := i18n.NewTranslator(cfg.I18n.DefaultLanguage, logger)
	if err != nil {
		return nil, err
	}
	for _, lang := range cfg.I18n.Supported {
		if err := t.AddMessages(lang, nil); err != nil {
			return nil, err
		}
	}
	if cfg.I18n.MessagesDir != "" {
		if err := t.LoadDir(cfg.I18n.MessagesDir); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// newRepository returns the REST repository when a base URL is configured
// and the local one otherwise.
func newRepository(cfg *config.Config, collection string, logger logging.Logger) (repository.Repository, error) {
	if cfg.Repository.BaseURL != "" {
		return repository.NewRESTRepository(cfg.Repository, collection, logger)
	}
	return repository.NewLocalRepository(cfg.Repository.LocalDir, collection, logger)
}
