package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/rzbill/slipway/pkg/log"
)

// Validate that BadgerStore implements the Store interface
var _ Store = &BadgerStore{}

// BadgerStore implements the Store interface using BadgerDB.
type BadgerStore struct {
	db     *badger.DB
	path   string
	logger log.Logger

	seqMu     sync.Mutex
	sequences map[string]*badger.Sequence
}

// NewBadgerStore creates a new BadgerDB-backed store.
func NewBadgerStore(logger log.Logger) *BadgerStore {
	if logger == nil {
		logger = log.GetDefaultLogger().WithComponent("store")
	} else {
		logger = logger.WithComponent("store")
	}

	return &BadgerStore{
		logger:    logger,
		sequences: make(map[string]*badger.Sequence),
	}
}

// Open opens the BadgerDB database.
func (s *BadgerStore) Open(path string) error {
	s.path = path

	opts := badger.DefaultOptions(path)
	opts.Logger = &badgerLogAdapter{logger: s.logger}

	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("failed to open badger db: %w", err)
	}
	s.db = db

	s.logger.Info("Run history store opened", log.Str("path", path))
	return nil
}

// Close releases sequences and closes the BadgerDB database.
func (s *BadgerStore) Close() error {
	if s.db == nil {
		return nil
	}

	s.logger.Info("Closing run history store", log.Str("path", s.path))

	s.seqMu.Lock()
	for _, seq := range s.sequences {
		if err := seq.Release(); err != nil {
			s.logger.Warn("Failed to release sequence", log.Err(err))
		}
	}
	s.sequences = make(map[string]*badger.Sequence)
	s.seqMu.Unlock()

	return s.db.Close()
}

// Create creates a new resource.
func (s *BadgerStore) Create(ctx context.Context, resourceType, pipeline, name string, resource interface{}) error {
	s.logger.Debug("Creating resource",
		log.Str("resourceType", resourceType),
		log.Str("pipeline", pipeline),
		log.Str("name", name))

	key := MakeKey(resourceType, pipeline, name)

	data, err := json.Marshal(resource)
	if err != nil {
		return fmt.Errorf("failed to serialize resource: %w", err)
	}

	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	_, err = txn.Get(key)
	if err == nil {
		return fmt.Errorf("resource %s/%s/%s already exists", resourceType, pipeline, name)
	} else if err != badger.ErrKeyNotFound {
		return fmt.Errorf("failed to check existing resource: %w", err)
	}

	if err := txn.Set(key, data); err != nil {
		return fmt.Errorf("failed to store resource: %w", err)
	}

	if err := txn.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Get retrieves a resource.
func (s *BadgerStore) Get(ctx context.Context, resourceType, pipeline, name string, resource interface{}) error {
	key := MakeKey(resourceType, pipeline, name)

	txn := s.db.NewTransaction(false)
	defer txn.Discard()

	item, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return fmt.Errorf("resource %s/%s/%s not found", resourceType, pipeline, name)
	} else if err != nil {
		return fmt.Errorf("failed to get resource: %w", err)
	}

	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, resource)
	})
}

// Update replaces an existing resource.
func (s *BadgerStore) Update(ctx context.Context, resourceType, pipeline, name string, resource interface{}) error {
	s.logger.Debug("Updating resource",
		log.Str("resourceType", resourceType),
		log.Str("pipeline", pipeline),
		log.Str("name", name))

	key := MakeKey(resourceType, pipeline, name)

	data, err := json.Marshal(resource)
	if err != nil {
		return fmt.Errorf("failed to serialize resource: %w", err)
	}

	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	_, err = txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return fmt.Errorf("resource %s/%s/%s not found", resourceType, pipeline, name)
	} else if err != nil {
		return fmt.Errorf("failed to check existing resource: %w", err)
	}

	if err := txn.Set(key, data); err != nil {
		return fmt.Errorf("failed to store resource: %w", err)
	}

	if err := txn.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Delete deletes a resource.
func (s *BadgerStore) Delete(ctx context.Context, resourceType, pipeline, name string) error {
	s.logger.Debug("Deleting resource",
		log.Str("resourceType", resourceType),
		log.Str("pipeline", pipeline),
		log.Str("name", name))

	key := MakeKey(resourceType, pipeline, name)

	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	_, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return fmt.Errorf("resource %s/%s/%s not found", resourceType, pipeline, name)
	} else if err != nil {
		return fmt.Errorf("failed to check existing resource: %w", err)
	}

	if err := txn.Delete(key); err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}

	if err := txn.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// List retrieves all resources of a given type for a pipeline.
func (s *BadgerStore) List(ctx context.Context, resourceType, pipeline string, out interface{}) error {
	var resources []json.RawMessage

	prefix := MakePrefix(resourceType, pipeline)

	txn := s.db.NewTransaction(false)
	defer txn.Discard()

	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		err := it.Item().Value(func(val []byte) error {
			resources = append(resources, append(json.RawMessage(nil), val...))
			return nil
		})
		if err != nil {
			return err
		}
	}

	s.logger.Debug("Found resources",
		log.Str("resourceType", resourceType),
		log.Int("count", len(resources)))
	return UnmarshalResource(resources, out)
}

// NextSequence returns the next run number for a pipeline. Numbers are
// 1-based and survive restarts.
func (s *BadgerStore) NextSequence(pipeline string) (uint64, error) {
	if s.db == nil {
		return 0, fmt.Errorf("store is not open")
	}

	s.seqMu.Lock()
	seq, ok := s.sequences[pipeline]
	if !ok {
		var err error
		key := []byte(fmt.Sprintf("__seq__/runs/%s", pipeline))
		seq, err = s.db.GetSequence(key, 1)
		if err != nil {
			s.seqMu.Unlock()
			return 0, fmt.Errorf("failed to open sequence for %s: %w", pipeline, err)
		}
		s.sequences[pipeline] = seq
	}
	s.seqMu.Unlock()

	n, err := seq.Next()
	if err != nil {
		return 0, fmt.Errorf("failed to advance sequence for %s: %w", pipeline, err)
	}
	return n + 1, nil
}

// badgerLogAdapter adapts our logger to BadgerDB's logger interface.
type badgerLogAdapter struct {
	logger log.Logger
}

// Errorf implements badger.Logger.
func (l *badgerLogAdapter) Errorf(format string, args ...interface{}) {
	l.logger.Errorf("BadgerDB: "+format, args...)
}

// Warningf implements badger.Logger.
func (l *badgerLogAdapter) Warningf(format string, args ...interface{}) {
	l.logger.Warnf("BadgerDB: "+format, args...)
}

// Infof implements badger.Logger.
func (l *badgerLogAdapter) Infof(format string, args ...interface{}) {
	l.logger.Debugf("BadgerDB: "+format, args...)
}

// Debugf implements badger.Logger.
func (l *badgerLogAdapter) Debugf(format string, args ...interface{}) {
	l.logger.Debugf("BadgerDB: "+format, args...)
}
