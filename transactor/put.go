package transactor

import (
	"encoding/json"

	"github.com/azmodb/barrel/barrelerr"
	"github.com/azmodb/barrel/revid"
	"github.com/azmodb/barrel/revtree"
	"github.com/azmodb/barrel/store"
)

// PutOptions configures the normal write path built on update_doc.
type PutOptions struct {
	// Lww, if set, accepts the write unconditionally (last write
	// wins) instead of enforcing the _rev-must-be-a-current-leaf rule.
	Lww bool
}

func generation(rev string) int {
	if rev == "" {
		return 0
	}
	id, err := revid.Parse(rev)
	if err != nil {
		return 0
	}
	return id.Generation
}

// BuildPut returns the UpdateFn implementing the normal write path (put,
// delete and post all funnel through this).
func BuildPut(rawBody []byte, opts PutOptions) (UpdateFn, error) {
	parsed, err := parseDoc(rawBody)
	if err != nil {
		return nil, err
	}

	return func(current store.DocInfo) (Outcome, error) {
		rev := parsed.Rev
		var parent string
		var newGen int

		switch {
		case opts.Lww:
			if current.CurrentRev != "" {
				parent = current.CurrentRev
				newGen = generation(current.CurrentRev) + 1
			} else {
				parent = ""
				newGen = generation(rev) + 1
			}

		case rev == "":
			if current.CurrentRev == "" {
				parent = ""
				newGen = 1
			} else if current.Deleted {
				parent = current.CurrentRev
				newGen = generation(current.CurrentRev) + 1
			} else {
				return Outcome{}, barrelerr.Conflict(barrelerr.DocExists,
					"document %q already exists", current.ID)
			}

		default:
			if !revtree.IsLeaf(rev, current.RevTree) {
				return Outcome{}, barrelerr.Conflict(barrelerr.RevisionConflict,
					"revision %q is not a current leaf of document %q", rev, current.ID)
			}
			parent = rev
			newGen = generation(rev) + 1
		}

		bodyNoRev := withoutRev(parsed.Body)
		newRev := revid.New(newGen, rev, bodyNoRev)

		tree := current.RevTree.Clone()
		tree = revtree.Add(revtree.Info{ID: newRev, Parent: parent, Deleted: parsed.Deleted}, tree)
		winner := revtree.WinningRevision(tree)

		info := store.DocInfo{
			ID:         current.ID,
			CurrentRev: winner.ID,
			Branched:   winner.Branched,
			Conflict:   winner.Conflict,
			Deleted:    tree[winner.ID].Deleted,
			RevTree:    tree,
		}

		finalBody := stamp(bodyNoRev, current.ID, newRev)
		bodyBytes, err := json.Marshal(finalBody)
		if err != nil {
			return Outcome{}, barrelerr.BadDocf("marshaling document body: %v", err)
		}

		return Outcome{Info: info, Body: bodyBytes, NewRev: newRev}, nil
	}, nil
}

// BuildDelete returns the UpdateFn for a delete: a put of a tombstone
// body carrying _rev and _deleted: true.
func BuildDelete(rev string) (UpdateFn, error) {
	raw, err := json.Marshal(map[string]interface{}{"_rev": rev, "_deleted": true})
	if err != nil {
		return nil, barrelerr.BadDocf("marshaling tombstone: %v", err)
	}
	return BuildPut(raw, PutOptions{})
}

// BuildPost returns the UpdateFn for a post: rejects bodies carrying
// _rev, then behaves like a put with no revision supplied.
func BuildPost(rawBody []byte) (UpdateFn, error) {
	var probe map[string]interface{}
	if err := json.Unmarshal(rawBody, &probe); err != nil {
		return nil, barrelerr.BadDocf("document body is not a JSON object: %v", err)
	}
	if _, ok := probe["_rev"]; ok {
		return nil, barrelerr.BadDocf("post must not supply _rev")
	}
	return BuildPut(rawBody, PutOptions{})
}

// BuildPutRev returns the UpdateFn for the replication write path: a
// document body plus an explicit, newest-first revision history.
//
// Grafting follows a proper chain (see DESIGN.md's O1 decision): the
// oldest staged ancestor attaches to the found Parent, and each newer
// one attaches to its immediate older neighbor in history, rather than
// attaching every staged entry directly to Parent.
func BuildPutRev(rawBody []byte, history []string) (UpdateFn, error) {
	parsed, err := parseDoc(rawBody)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, barrelerr.BadDocf("put_rev requires a non-empty history")
	}

	return func(current store.DocInfo) (Outcome, error) {
		idx := len(history)
		parent := ""
		for i, rev := range history {
			if revtree.Contains(rev, current.RevTree) {
				idx = i
				parent = rev
				break
			}
		}

		if idx == 0 {
			// The newest revision is already present: no-op.
			return Outcome{Info: current, NewRev: history[0], NoOp: true}, nil
		}

		toAdd := history[:idx]
		tree := current.RevTree.Clone()
		n := len(toAdd)
		for i := n - 1; i >= 0; i-- {
			p := parent
			if i != n-1 {
				p = toAdd[i+1]
			}
			tree = revtree.Add(revtree.Info{
				ID:      toAdd[i],
				Parent:  p,
				Deleted: i == 0 && parsed.Deleted,
			}, tree)
		}

		winner := revtree.WinningRevision(tree)
		info := store.DocInfo{
			ID:         current.ID,
			CurrentRev: winner.ID,
			Branched:   winner.Branched,
			Conflict:   winner.Conflict,
			Deleted:    tree[winner.ID].Deleted,
			RevTree:    tree,
		}

		bodyNoRev := withoutRev(parsed.Body)
		finalBody := stamp(bodyNoRev, current.ID, history[0])
		bodyBytes, err := json.Marshal(finalBody)
		if err != nil {
			return Outcome{}, barrelerr.BadDocf("marshaling document body: %v", err)
		}

		return Outcome{Info: info, Body: bodyBytes, NewRev: history[0]}, nil
	}, nil
}
