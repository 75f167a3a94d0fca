// Package store is the document store coordinator: it owns the engine
// session, batches writes and exposes the add, remove, search, transaction
// and maintenance surface.
//
// A Store serves one logical writer. Callers that share a Store between
// goroutines must serialize their calls.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arkilian/nanostore/internal/bag"
	"github.com/arkilian/nanostore/internal/config"
	"github.com/arkilian/nanostore/internal/engine"
	storeerrors "github.com/arkilian/nanostore/internal/errors"
	"github.com/arkilian/nanostore/internal/hydrate"
	"github.com/arkilian/nanostore/internal/index"
	"github.com/arkilian/nanostore/internal/observability"
	"github.com/arkilian/nanostore/pkg/types"
)

// Store is an open document store.
type Store struct {
	cfg      *config.Config
	engine   *engine.Engine
	registry *types.Registry
	hydrator *hydrate.Hydrator
	session  string

	logger  *zap.Logger
	metrics *observability.Metrics
	stats   *observability.AttributeStats
	indexes *index.Manager
	policy  *index.Policy

	// indexed lists the attribute paths carrying an index, for the
	// translator.
	indexed []string

	saveInterval int
	pending      map[string]types.Document
	pendingOrder []string

	closed bool
}

var _ bag.Backend = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. The default logs nothing.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRegistry sets the registry used to rebuild stored documents into
// their own types.
func WithRegistry(registry *types.Registry) Option {
	return func(s *Store) {
		if registry != nil {
			s.registry = registry
		}
	}
}

// WithMetrics records store operations in m.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// Open opens the store described by cfg. A nil cfg opens an in-memory
// store with default settings.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Store, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	} else {
		cfg = cfg.Clone()
	}
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, storeerrors.Wrap(storeerrors.ErrCategoryConfiguration, storeerrors.CodeInvalidParameter,
			"store: invalid configuration", err)
	}

	s := &Store{
		cfg:          cfg,
		registry:     types.NewRegistry(),
		session:      uuid.NewString(),
		logger:       zap.NewNop(),
		stats:        observability.NewAttributeStats(cfg.Index.StatsWindow),
		saveInterval: cfg.Store.SaveInterval,
		pending:      make(map[string]types.Document),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.saveInterval < 1 {
		s.saveInterval = 1
	}
	s.registry.Register(bag.TypeTag, bag.Construct)
	s.hydrator = hydrate.New(s.registry, s.session)

	if cfg.Store.Type == config.StoreTypePersistent {
		if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0755); err != nil {
			return nil, storeerrors.NewStorageError(storeerrors.CodeEngineFailure, "store: create data directory", err)
		}
	}

	e, err := engine.Open(ctx, engine.OptionsFromConfig(cfg))
	if err != nil {
		return nil, err
	}
	s.engine = e
	s.indexes = index.NewManager(e, s.logger)
	s.policy = index.NewPolicy(s.stats, s.indexes, cfg.Index, s.logger)

	if err := s.refreshIndexed(ctx); err != nil {
		e.Close()
		return nil, err
	}

	bag.Attach(s.session, s)
	s.logger.Info("store opened",
		zap.String("session", s.session),
		zap.String("type", string(cfg.Store.Type)),
		zap.String("path", e.Path()),
		zap.Int("save_interval", s.saveInterval))
	return s, nil
}

// Session returns the session id documents loaded by this store are bound
// to.
func (s *Store) Session() string { return s.session }

// Path returns the database file, or ":memory:".
func (s *Store) Path() string { return s.engine.Path() }

// Registry returns the type registry.
func (s *Store) Registry() *types.Registry { return s.registry }

// Engine returns the underlying engine for introspection.
func (s *Store) Engine() *engine.Engine { return s.engine }

// AttributeStats returns the attribute usage recorded by searches.
func (s *Store) AttributeStats() *observability.AttributeStats { return s.stats }

// SaveInterval returns the number of added documents buffered before they
// are written.
func (s *Store) SaveInterval() int { return s.saveInterval }

// SetSaveInterval changes the save interval. Values below 1 mean 1. The
// change applies from the next add.
func (s *Store) SetSaveInterval(n int) {
	if n < 1 {
		n = 1
	}
	s.saveInterval = n
}

func (s *Store) ready() error {
	if s.closed {
		return storeerrors.ErrStoreClosed
	}
	return nil
}

func (s *Store) observe(op string, start time.Time, err *error) {
	s.metrics.ObserveOperation(op, start, *err)
	if *err != nil {
		s.logger.Debug("store operation failed", zap.String("operation", op), zap.Error(*err))
	}
}

func (s *Store) refreshIndexed(ctx context.Context) error {
	attrs, err := s.indexes.Attributes(ctx)
	if err != nil {
		return err
	}
	s.indexed = attrs
	return nil
}

// Close writes pending documents, detaches the session and closes the
// engine. Later calls return NotReady errors. Closing twice is a no-op.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}

	var errs []error
	if s.engine.InTransaction() {
		s.logger.Warn("closing store with an open transaction; rolling back", zap.String("session", s.session))
	} else if err := s.flush(context.Background()); err != nil {
		errs = append(errs, fmt.Errorf("store: flush pending documents: %w", err))
	}

	s.closed = true
	bag.Detach(s.session)
	if err := s.engine.Close(); err != nil {
		errs = append(errs, err)
	}
	s.logger.Info("store closed", zap.String("session", s.session))
	return errors.Join(errs...)
}
