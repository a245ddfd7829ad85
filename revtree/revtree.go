// Package revtree implements the pure revision tree algebra: a forest
// of revisions keyed by RevID, with leaf detection, winning-revision
// selection and revs-diff.
//
// Package shape follows the azmodb in-memory store's leaf package style
// (small, dependency-free, doc comments only on the exported surface)
// rather than its data structure — azmodb's tree is an LLRB of
// byte-keyed pairs built for range scans, while a RevTree is a forest
// keyed by revision id with no ordering requirement beyond leaf fold.
package revtree

import (
	"sort"

	"github.com/azmodb/barrel/revid"
)

// Info describes one revision in a tree.
type Info struct {
	ID      string `json:"id"`
	Parent  string `json:"parent,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
}

// IsRoot reports whether this revision has no parent.
func (i Info) IsRoot() bool { return i.Parent == "" }

// Tree is a forest of revisions keyed by RevID. The zero value is an
// empty tree ready to use.
type Tree map[string]Info

// New returns an empty tree.
func New() Tree { return make(Tree) }

// Clone returns a deep copy of t.
func (t Tree) Clone() Tree {
	c := make(Tree, len(t))
	for k, v := range t {
		c[k] = v
	}
	return c
}

// Add inserts or overwrites info by its ID. No parent-existence check is
// performed at add time: callers stage batches and must maintain the
// tree's invariants themselves (every non-empty Parent names an entry of
// the tree).
func Add(info Info, t Tree) Tree {
	t[info.ID] = info
	return t
}

// Contains reports whether id is present in t.
func Contains(id string, t Tree) bool {
	_, ok := t[id]
	return ok
}

// IsLeaf reports whether id is in t and no other entry names it as a
// parent.
func IsLeaf(id string, t Tree) bool {
	if _, ok := t[id]; !ok {
		return false
	}
	for _, info := range t {
		if info.Parent == id {
			return false
		}
	}
	return true
}

// FoldLeafs visits every leaf of t exactly once in ascending RevID
// order (a total order over "<generation>-<hash>" strings is not the
// same as numeric generation order, but it is deterministic for a given
// tree, which is all the specification requires).
func FoldLeafs(t Tree, f func(Info, interface{}) interface{}, acc interface{}) interface{} {
	for _, id := range sortedLeafIDs(t) {
		acc = f(t[id], acc)
	}
	return acc
}

// Leaves returns every leaf of t, in ascending RevID order.
func Leaves(t Tree) []Info {
	ids := sortedLeafIDs(t)
	out := make([]Info, 0, len(ids))
	for _, id := range ids {
		out = append(out, t[id])
	}
	return out
}

func sortedLeafIDs(t Tree) []string {
	children := make(map[string]bool, len(t))
	for _, info := range t {
		if info.Parent != "" {
			children[info.Parent] = true
		}
	}

	ids := make([]string, 0, len(t))
	for id := range t {
		if !children[id] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Winner is the result of winning-revision selection.
type Winner struct {
	ID       string
	Branched bool
	Conflict bool
}

// WinningRevision selects the current revision of t per the
// specification's tie-break rule: partition leaves into live
// (non-deleted) and deleted, prefer a winner among live leaves, and
// break ties by highest generation then lexicographically largest hash.
func WinningRevision(t Tree) Winner {
	leaves := Leaves(t)
	if len(leaves) == 0 {
		return Winner{}
	}

	var live, deleted []Info
	for _, l := range leaves {
		if l.Deleted {
			deleted = append(deleted, l)
		} else {
			live = append(live, l)
		}
	}

	pool := live
	if len(pool) == 0 {
		pool = deleted
	}

	winner := pickWinner(pool)
	return Winner{
		ID:       winner,
		Branched: len(leaves) > 1,
		Conflict: len(live) > 1,
	}
}

// pickWinner applies the tie-break rule over a non-empty slice of
// leaves: highest generation, then lexicographically largest hash.
func pickWinner(leaves []Info) string {
	best := leaves[0]
	bestID := revid.MustParse(best.ID)
	for _, l := range leaves[1:] {
		id := revid.MustParse(l.ID)
		if id.Generation > bestID.Generation ||
			(id.Generation == bestID.Generation && id.Hash > bestID.Hash) {
			best = l
			bestID = id
		}
	}
	return best.ID
}

// RevsDiff reports, for a document whose current tree is t, which of
// revs are missing from t and which known revisions are possible
// ancestors of each missing one.
func RevsDiff(t Tree, revs []string) (missing []string, possibleAncestors []string) {
	want := make(map[string]bool, len(revs))
	for _, r := range revs {
		want[r] = true
	}

	for _, r := range revs {
		if !Contains(r, t) {
			missing = append(missing, r)
		}
	}
	if len(missing) == 0 {
		return nil, nil
	}

	ancestorSet := make(map[string]bool)
	for _, m := range missing {
		mID, err := revid.Parse(m)
		if err != nil {
			continue
		}
		for _, leaf := range Leaves(t) {
			if !want[leaf.ID] {
				continue
			}
			leafID, err := revid.Parse(leaf.ID)
			if err != nil {
				continue
			}
			switch {
			case leafID.Generation < mID.Generation:
				ancestorSet[leaf.ID] = true
			case leafID.Generation == mID.Generation && leaf.Parent != "":
				ancestorSet[leaf.Parent] = true
			}
		}
	}
	if len(ancestorSet) == 0 {
		return missing, nil
	}

	possibleAncestors = make([]string, 0, len(ancestorSet))
	for id := range ancestorSet {
		possibleAncestors = append(possibleAncestors, id)
	}
	sort.Strings(possibleAncestors)
	return missing, possibleAncestors
}

// History walks t from rev toward the root, capped at maxHistory
// entries, stopping early if it encounters an entry present in
// ancestors. It returns the hash component of each visited revision,
// newest first, matching the _revisions.ids wire shape.
func History(t Tree, rev string, maxHistory int, ancestors map[string]bool) (start int, ids []string) {
	id, err := revid.Parse(rev)
	if err != nil || rev == "" {
		return 0, nil
	}
	start = id.Generation

	cur := rev
	for cur != "" {
		info, ok := t[cur]
		if !ok {
			break
		}
		curID, err := revid.Parse(cur)
		if err != nil {
			break
		}
		ids = append(ids, curID.Hash)
		if maxHistory > 0 && len(ids) >= maxHistory {
			break
		}
		if ancestors != nil && ancestors[cur] {
			break
		}
		cur = info.Parent
	}
	return start, ids
}
