// Package registry names databases within one open store and supervises
// their transactors: it is the spec's "mapping from DbName to a handle
// bundling {Store, Transactor, Database, EventBus}" plus the crash/respawn
// logic described in spec.md §5's failure-isolation rule.
//
// Grounded on the azmodb in-memory store's backend wiring (backend.go,
// db.go's Open/Snapshot pairing): one backend handle per process, opened
// once and handed out to higher-level types, generalized here from "one
// backend" to "one named Database per registry entry".
package registry

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/azmodb/barrel/barrelerr"
	"github.com/azmodb/barrel/database"
	"github.com/azmodb/barrel/eventbus"
	"github.com/azmodb/barrel/store"
)

// Handle bundles everything the registry owns for one named database.
type Handle struct {
	Name string
	DB   *database.Database

	bus  *eventbus.Bus
	dbID store.DBID
}

// Registry opens and names databases backed by a single store handle,
// respawning a database's transactor if its run loop exits unexpectedly.
type Registry struct {
	store *store.Store
	log   *zap.Logger

	mu      sync.Mutex
	handles map[string]*Handle
	closed  bool

	wg sync.WaitGroup
}

// New returns a Registry backed by the given store handle. The Registry
// does not own s's lifetime: callers that opened s themselves remain
// responsible for closing it after Shutdown returns.
func New(s *store.Store, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		store:   s,
		log:     log,
		handles: make(map[string]*Handle),
	}
}

// Open returns the named database, opening it (and, if createIfMissing
// is set, creating it) if it is not already open in this registry.
func (r *Registry) Open(name string, createIfMissing bool) (*database.Database, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, barrelerr.New(barrelerr.StorageError, "registry is shut down")
	}

	if h, ok := r.handles[name]; ok {
		return h.DB, nil
	}

	dbID, seq, err := r.store.OpenDB(name, createIfMissing)
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()
	db := database.New(name, r.store, dbID, bus, seq, r.log.With(zap.String("database", name)))
	h := &Handle{Name: name, DB: db, bus: bus, dbID: dbID}
	r.handles[name] = h

	r.supervise(h)
	return db, nil
}

// supervise watches h's transactor-done channel and respawns a fresh
// transactor, recovering update_seq from the store, if it exits while
// the registry is still open. Per spec.md §5, a respawned transactor
// loses only requests in flight at the moment of the crash; already
// committed writes are durable in the store.
func (r *Registry) supervise(h *Handle) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		<-h.DB.Done()

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			return
		}
		if cur, ok := r.handles[h.Name]; !ok || cur != h {
			return // Clean already removed this handle
		}

		r.log.Error("transactor exited unexpectedly, respawning",
			zap.String("database", h.Name))

		seq, err := r.store.LastUpdateSeq(h.dbID)
		if err != nil {
			r.log.Error("failed to recover update_seq, dropping database",
				zap.String("database", h.Name), zap.Error(err))
			delete(r.handles, h.Name)
			return
		}

		db := database.New(h.Name, r.store, h.dbID, h.bus, seq, r.log.With(zap.String("database", h.Name)))
		h.DB = db
		r.supervise(h)
	}()
}

// Clean stops name's transactor and removes all of its data, including
// its system-doc namespace.
func (r *Registry) Clean(name string) error {
	r.mu.Lock()
	h, ok := r.handles[name]
	if !ok {
		r.mu.Unlock()
		return barrelerr.NotFoundf("database %q is not open", name)
	}
	delete(r.handles, name)
	r.mu.Unlock()

	h.DB.Stop()
	return r.store.CleanDB(h.Name, h.dbID)
}

// Names returns the currently open database names.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.handles))
	for name := range r.handles {
		names = append(names, name)
	}
	return names
}

// Shutdown stops every open database's transactor and prevents further
// Opens. It does not close the underlying store handle.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	handles := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	for _, h := range handles {
		h.DB.Stop()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
