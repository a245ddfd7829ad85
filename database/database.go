// Package database implements the Database façade described in the
// specification: one Transactor and one Store handle, read operations
// going straight to the Store, document writes (put, put_rev, delete,
// post) serialized through the Transactor, and update notifications
// republished on an Event bus. System-document writes and deletes are
// not serialized through the Transactor: they go straight to the Store.
//
// Grounded on the azmodb in-memory store's DB type (db.go): a thin
// orchestration layer in front of a writer and a backend, generalized
// from "one in-memory tree" to "one store handle plus one transactor
// handle plus one event bus".
package database

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/azmodb/barrel/barrelerr"
	"github.com/azmodb/barrel/eventbus"
	"github.com/azmodb/barrel/revtree"
	"github.com/azmodb/barrel/store"
	"github.com/azmodb/barrel/transactor"
)

// Database is the façade over one named database: its store handle, its
// transactor and its event bus.
type Database struct {
	Name string

	store *store.Store
	dbID  store.DBID
	tr    *transactor.Transactor
	bus   *eventbus.Bus
	log   *zap.Logger

	updateSeq uint64 // atomic; cached from Transactor notifications
}

// New opens a Database façade backed by store handle s and database
// dbID, starting its Transactor at startSeq (typically
// store.LastUpdateSeq). The Transactor is constructed internally so
// that its commit hook can be wired to this Database's own onUpdated
// method, keeping update_seq caching and bus notification inside a
// single synchronous path instead of requiring callers to poll
// Transactor.UpdateSeq after every write.
func New(name string, s *store.Store, dbID store.DBID, bus *eventbus.Bus, startSeq uint64, log *zap.Logger) *Database {
	if log == nil {
		log = zap.NewNop()
	}
	d := &Database{
		Name:      name,
		store:     s,
		dbID:      dbID,
		bus:       bus,
		log:       log,
		updateSeq: startSeq,
	}
	d.tr = transactor.New(s, dbID, startSeq, d.onUpdated, log)
	return d
}

// UpdateSeq returns the façade's cached high-water mark.
func (d *Database) UpdateSeq() uint64 { return atomic.LoadUint64(&d.updateSeq) }

// Done returns a channel closed when this Database's transactor stops,
// whether from Stop or an unrecoverable failure. The registry's
// supervisor uses this to detect crashes and respawn.
func (d *Database) Done() <-chan struct{} { return d.tr.Done() }

// Stop terminates this Database's transactor. In-flight writes already
// accepted before Stop is called still complete; new ones fail with a
// storage_error.
func (d *Database) Stop() { d.tr.Stop() }

// onUpdated is the Transactor's commit hook, called after every durable
// commit (not for a put_rev that changes nothing) to advance the cached
// update_seq and fan the notification out to the event bus.
func (d *Database) onUpdated(seq uint64) {
	for {
		cur := atomic.LoadUint64(&d.updateSeq)
		if seq <= cur {
			return
		}
		if atomic.CompareAndSwapUint64(&d.updateSeq, cur, seq) {
			break
		}
	}
	if d.bus != nil {
		d.bus.Notify(eventbus.Event{Seq: seq})
	}
}

// GetOptions configures Get.
type GetOptions struct {
	Rev        string // empty means current revision
	History    bool
	MaxHistory int
	Ancestors  map[string]bool
}

// Get returns the document body at the requested revision (or the
// current winning revision if Rev is empty), optionally annotated with
// _revisions history.
func (d *Database) Get(docID string, opts GetOptions) ([]byte, error) {
	info, err := d.store.GetDocInfo(d.dbID, docID)
	if err != nil {
		return nil, err
	}

	rev := opts.Rev
	if rev == "" {
		if info.Deleted {
			return nil, barrelerr.NotFoundf("document %q is deleted", docID)
		}
		rev = info.CurrentRev
	}

	body, err := d.store.GetDocBody(d.dbID, docID, rev)
	if err != nil {
		return nil, err
	}

	if !opts.History {
		return body, nil
	}

	var m map[string]interface{}
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, barrelerr.Wrap(err, "decoding stored document body")
	}
	start, ids := revtree.History(info.RevTree, rev, opts.MaxHistory, opts.Ancestors)
	m["_revisions"] = map[string]interface{}{"start": start, "ids": ids}
	out, err := json.Marshal(m)
	if err != nil {
		return nil, barrelerr.Wrap(err, "encoding document body with history")
	}
	return out, nil
}

// Put writes body as the next revision of docID, per the transactor's
// normal write path.
func (d *Database) Put(ctx context.Context, docID string, body []byte, opts transactor.PutOptions) (string, error) {
	fn, err := transactor.BuildPut(body, opts)
	if err != nil {
		return "", err
	}
	return d.tr.UpdateDoc(ctx, docID, fn)
}

// PutRev writes body as docID's revision history[0], grafting any
// missing ancestors from history, per the transactor's replication
// write path.
func (d *Database) PutRev(ctx context.Context, docID string, body []byte, history []string) (string, error) {
	fn, err := transactor.BuildPutRev(body, history)
	if err != nil {
		return "", err
	}
	return d.tr.UpdateDoc(ctx, docID, fn)
}

// Delete writes a tombstone for docID at revision rev.
func (d *Database) Delete(ctx context.Context, docID, rev string) (string, error) {
	fn, err := transactor.BuildDelete(rev)
	if err != nil {
		return "", err
	}
	return d.tr.UpdateDoc(ctx, docID, fn)
}

// Post creates a new document, generating a fresh opaque DocID if docID
// is empty, and rejecting bodies that carry _rev. It returns the DocID
// used (generated or caller-supplied) alongside the new revision.
func (d *Database) Post(ctx context.Context, docID string, body []byte) (string, string, error) {
	if docID == "" {
		docID = uuid.New().String()
	}
	fn, err := transactor.BuildPost(body)
	if err != nil {
		return docID, "", err
	}
	rev, err := d.tr.UpdateDoc(ctx, docID, fn)
	if err != nil {
		return docID, "", err
	}
	return docID, rev, nil
}

// Infos returns the current DocInfo for docID.
func (d *Database) Infos(docID string) (store.DocInfo, error) {
	return d.store.GetDocInfo(d.dbID, docID)
}

// FoldByID iterates doc-infos in DocID order, subject to opts.
func (d *Database) FoldByID(opts store.FoldOptions, fn func(store.DocInfo) error) error {
	return d.store.FoldByID(d.dbID, opts, fn)
}

// ChangeRow is one row of a changes feed response.
type ChangeRow struct {
	Seq  uint64
	Info store.DocInfo
}

// ChangesSince returns every committed row with seq greater than since,
// per the resume-offset rule in the specification (O3): exclusive when
// since > 0, inclusive when since == 0.
func (d *Database) ChangesSince(since uint64) ([]ChangeRow, uint64, error) {
	from := since
	if since > 0 {
		from = since + 1
	}

	var rows []ChangeRow
	lastSeq := since
	err := d.store.ChangesSince(d.dbID, from, func(seq uint64, info store.DocInfo) error {
		rows = append(rows, ChangeRow{Seq: seq, Info: info})
		if seq > lastSeq {
			lastSeq = seq
		}
		return nil
	})
	if err != nil {
		return nil, since, err
	}
	return rows, lastSeq, nil
}

// RevsDiff reports missing revisions and possible ancestors for docID,
// per the revs_diff replication primitive. A missing document reports
// every requested revision as missing, with no possible ancestors.
func (d *Database) RevsDiff(docID string, revs []string) (missing, possibleAncestors []string, err error) {
	info, err := d.store.GetDocInfo(d.dbID, docID)
	if err != nil {
		if barrelerr.Is(err, barrelerr.NotFound) {
			return append([]string(nil), revs...), nil, nil
		}
		return nil, nil, err
	}
	missing, possibleAncestors = revtree.RevsDiff(info.RevTree, revs)
	return missing, possibleAncestors, nil
}

// ReadSystemDoc reads a system document by id, bypassing the revision
// tree machinery entirely.
func (d *Database) ReadSystemDoc(id string) ([]byte, error) {
	return d.store.ReadSystemDoc(d.dbID, id)
}

// WriteSystemDoc writes a system document by id.
func (d *Database) WriteSystemDoc(id string, body []byte) error {
	return d.store.WriteSystemDoc(d.dbID, id, body)
}

// DeleteSystemDoc removes a system document by id.
func (d *Database) DeleteSystemDoc(id string) error {
	return d.store.DeleteSystemDoc(d.dbID, id)
}

// Subscribe registers a new subscriber on the database's event bus.
func (d *Database) Subscribe() *eventbus.Subscription {
	if d.bus == nil {
		return nil
	}
	return d.bus.Register()
}
