// Package changefeed adapts a database's by-sequence change log and its
// event bus into the three modes described in the specification
// (normal, longpoll, continuous/eventsource) behind one Go-idiomatic
// streaming API: callers range over a channel of Batch instead of
// polling changes_since themselves.
//
// Grounded on the azmodb in-memory store's stream/Watcher pair
// (watch.go, watcher.go): one goroutine owns a subscription and feeds a
// buffered output channel, decoupled from the writer that publishes
// db_updated events.
package changefeed

import (
	"context"
	"time"

	"github.com/azmodb/barrel/database"
)

// Row is one change-feed entry: the sequence of a document's latest
// change, its id, its winning revision, and whether that revision is a
// tombstone. It carries only these fields of the document's DocInfo.
type Row struct {
	Seq     uint64 `json:"seq"`
	ID      string `json:"id"`
	Rev     string `json:"rev"`
	Deleted bool   `json:"deleted,omitempty"`
}

// Batch is one delivery on the stream: a contiguous run of rows plus the
// sequence the caller should resume from next.
type Batch struct {
	Rows    []Row
	LastSeq uint64
}

// Mode selects how Stream behaves once it has caught the caller up to
// the database's current update_seq.
type Mode int

const (
	// Normal delivers exactly one Batch (with no rows if nothing changed
	// after since) and then closes the channel, mirroring a plain
	// changes_since call.
	Normal Mode = iota
	// LongPoll delivers one Batch of historical rows if any exist, else
	// blocks for the first future db_updated event before delivering one
	// Batch and closing.
	LongPoll
	// Continuous delivers a Batch per db_updated event indefinitely,
	// until ctx is canceled or the caller invokes the returned cancel
	// function, mirroring the eventsource/SSE mode.
	Continuous
)

func rowsFromChanges(rows []database.ChangeRow) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, Row{
			Seq:     r.Seq,
			ID:      r.Info.ID,
			Rev:     r.Info.CurrentRev,
			Deleted: r.Info.Deleted,
		})
	}
	return out
}

// Stream starts delivering change batches for db starting after since,
// in the given mode. It returns a receive-only channel of Batch and a
// cancel function the caller must invoke once done (it is always safe
// to call, even after the channel has closed on its own).
func Stream(ctx context.Context, db *database.Database, since uint64, mode Mode) (<-chan Batch, func()) {
	out := make(chan Batch, 1)
	sub := db.Subscribe()

	done := make(chan struct{})
	var stop func()
	if sub != nil {
		stop = func() { sub.Cancel() }
	} else {
		stop = func() {}
	}
	cancel := func() {
		select {
		case <-done:
		default:
			close(done)
		}
		stop()
	}

	go func() {
		defer close(out)
		defer stop()

		cur := since
		rows, last, err := db.ChangesSince(cur)
		delivered := err == nil && len(rows) > 0
		if delivered {
			cur = last
			select {
			case out <- Batch{Rows: rowsFromChanges(rows), LastSeq: last}:
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}

		switch mode {
		case Normal:
			if !delivered && err == nil {
				select {
				case out <- Batch{Rows: []Row{}, LastSeq: last}:
				case <-ctx.Done():
				case <-done:
				}
			}
			return
		case LongPoll:
			if delivered {
				return
			}
		}

		if sub == nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case _, ok := <-sub.Events():
				if !ok {
					return
				}
				rows, last, err := db.ChangesSince(cur)
				if err != nil || len(rows) == 0 {
					continue
				}
				cur = last
				select {
				case out <- Batch{Rows: rowsFromChanges(rows), LastSeq: last}:
				case <-ctx.Done():
					return
				case <-done:
					return
				}
				if mode == LongPoll {
					return
				}
			}
		}
	}()

	return out, cancel
}

// Heartbeat returns a ticker channel suitable for keeping an SSE
// connection alive between Batch deliveries, per spec.md §6's
// event-stream framing (a comment line sent on a fixed interval).
func Heartbeat(ctx context.Context, interval time.Duration) <-chan time.Time {
	t := time.NewTicker(interval)
	out := make(chan time.Time)
	go func() {
		defer t.Stop()
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case tm := <-t.C:
				select {
				case out <- tm:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
