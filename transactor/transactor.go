// Package transactor implements the per-database single-writer actor:
// it serializes update_doc requests in arrival order, reads current
// document metadata from the store, invokes a caller-supplied update
// function, computes the new revision's sequence number, and commits
// the result as a single atomic batch.
//
// Grounded on the azmodb in-memory store's Batch/DB pairing
// (batch.go, memdb.go): one mutex-free actor goroutine owns all writes,
// readers never block on it, and every accepted write bumps a single
// monotonic counter before notifying subscribers.
package transactor

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/azmodb/barrel/barrelerr"
	"github.com/azmodb/barrel/store"
)

// Outcome is what an UpdateFn returns on acceptance: the document's new
// metadata, its new body, and the revision just minted.
type Outcome struct {
	Info   store.DocInfo
	Body   []byte
	NewRev string

	// NoOp, set by put_rev when the newest revision in the supplied
	// history is already present, tells the run loop to reply success
	// without bumping update_seq or writing a commit batch.
	NoOp bool
}

// UpdateFn is invoked with the document's current metadata (or a fresh
// empty one if it does not exist) and either returns an Outcome to
// commit, or an error. A *barrelerr.Error of kind DocExists or
// RevisionConflict is reported to the caller as a rejected write; any
// other error propagates unchanged.
type UpdateFn func(current store.DocInfo) (Outcome, error)

type request struct {
	docID string
	fn    UpdateFn
	reply chan response
}

type response struct {
	rev string
	err error
}

// Transactor is the single-writer actor for one database.
type Transactor struct {
	store    *store.Store
	dbID     store.DBID
	onCommit func(seq uint64)
	log      *zap.Logger

	updateSeq uint64 // atomic: written by run loop, read by UpdateSeq

	reqs     chan request
	done     chan struct{}
	stopOnce sync.Once
}

// New starts a Transactor bound to store s and database dbID, resuming
// from startSeq (typically store.LastUpdateSeq, on first spawn or after
// a respawn). onCommit, if non-nil, is invoked synchronously from the
// run loop after every durable commit, with the sequence just assigned;
// the owning Database uses this to update its cached update_seq and
// republish on its event bus, per the specification's "On {updated,
// Seq} from the Transactor, the Database updates ... and publishes
// db_updated" rule.
func New(s *store.Store, dbID store.DBID, startSeq uint64, onCommit func(seq uint64), log *zap.Logger) *Transactor {
	if log == nil {
		log = zap.NewNop()
	}
	t := &Transactor{
		store:     s,
		dbID:      dbID,
		onCommit:  onCommit,
		log:       log,
		updateSeq: startSeq,
		reqs:      make(chan request, 64),
		done:      make(chan struct{}),
	}
	go t.run()
	return t
}

// UpdateSeq returns the last sequence number this Transactor committed.
func (t *Transactor) UpdateSeq() uint64 { return atomic.LoadUint64(&t.updateSeq) }

// Done returns a channel closed when the Transactor's run loop exits,
// whether from Stop or from an unrecoverable failure. The registry uses
// this to detect crashes and respawn.
func (t *Transactor) Done() <-chan struct{} { return t.done }

// Stop terminates the actor. Requests already accepted onto the channel
// before Stop is called are still processed in order; UpdateDoc calls
// racing with Stop either get accepted and processed, or see the closed
// done channel and fail with a storage_error.
func (t *Transactor) Stop() {
	t.stopOnce.Do(func() { close(t.reqs) })
}

// UpdateDoc submits an update request and blocks until it has been
// processed (committed or rejected) or ctx is done. Requests are
// processed strictly in the order UpdateDoc is called.
func (t *Transactor) UpdateDoc(ctx context.Context, docID string, fn UpdateFn) (string, error) {
	req := request{docID: docID, fn: fn, reply: make(chan response, 1)}

	err := func() (err error) {
		// Stop closes reqs; a send after that panics, and is reported
		// the same way as a send that sees done closed.
		defer func() {
			if recover() != nil {
				err = barrelerr.New(barrelerr.StorageError, "transactor for database is not running")
			}
		}()
		select {
		case t.reqs <- req:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-t.done:
			return barrelerr.New(barrelerr.StorageError, "transactor for database is not running")
		}
	}()
	if err != nil {
		return "", err
	}

	select {
	case resp := <-req.reply:
		return resp.rev, resp.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (t *Transactor) run() {
	defer close(t.done)

	for req := range t.reqs {
		rev, err := t.process(req.docID, req.fn)
		req.reply <- response{rev: rev, err: err}
	}
}

func (t *Transactor) process(docID string, fn UpdateFn) (string, error) {
	current, err := t.store.GetDocInfo(t.dbID, docID)
	hasOldSeq := err == nil
	if err != nil {
		if !barrelerr.Is(err, barrelerr.NotFound) {
			return "", err
		}
		current = store.Empty(docID)
	}
	oldSeq := current.UpdateSeq

	outcome, err := fn(current)
	if err != nil {
		t.log.Debug("update rejected",
			zap.String("doc_id", docID),
			zap.Error(err),
		)
		return "", err
	}

	if outcome.NoOp {
		return outcome.NewRev, nil
	}

	newSeq := atomic.LoadUint64(&t.updateSeq) + 1
	outcome.Info.UpdateSeq = newSeq

	if err := t.store.Commit(t.dbID, docID, outcome.Info, outcome.NewRev, outcome.Body, newSeq, oldSeq, hasOldSeq); err != nil {
		t.log.Error("commit failed",
			zap.String("doc_id", docID),
			zap.Error(err),
		)
		return "", err
	}

	atomic.StoreUint64(&t.updateSeq, newSeq)
	t.log.Debug("commit",
		zap.String("doc_id", docID),
		zap.String("new_rev", outcome.NewRev),
		zap.Uint64("seq", newSeq),
	)

	if t.onCommit != nil {
		t.onCommit(newSeq)
	}
	return outcome.NewRev, nil
}
