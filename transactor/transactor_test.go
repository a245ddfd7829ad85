package transactor

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/boltdb/bolt"

	"github.com/azmodb/barrel/barrelerr"
	"github.com/azmodb/barrel/eventbus"
	"github.com/azmodb/barrel/store"
)

func newTestTransactor(t *testing.T) (*Transactor, *store.Store, store.DBID, *eventbus.Bus) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "barrel.db")
	s, err := store.Open(path, &bolt.Options{Timeout: time.Second})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	id, seq, err := s.OpenDB("test", true)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	bus := eventbus.New()
	tr := New(s, id, seq, func(seq uint64) { bus.Notify(eventbus.Event{Seq: seq}) }, nil)
	t.Cleanup(tr.Stop)
	return tr, s, id, bus
}

func put(t *testing.T, tr *Transactor, docID string, body map[string]interface{}, lww bool) string {
	t.Helper()
	raw, _ := json.Marshal(body)
	fn, err := BuildPut(raw, PutOptions{Lww: lww})
	if err != nil {
		t.Fatalf("build put: %v", err)
	}
	rev, err := tr.UpdateDoc(context.Background(), docID, fn)
	if err != nil {
		t.Fatalf("put %s: %v", docID, err)
	}
	return rev
}

// TestScenarioS1CreateRead mirrors spec scenario S1.
func TestScenarioS1CreateRead(t *testing.T) {
	tr, s, id, _ := newTestTransactor(t)

	fn, err := BuildPost([]byte(`{"v":1}`))
	if err != nil {
		t.Fatalf("build post: %v", err)
	}
	rev, err := tr.UpdateDoc(context.Background(), "doc1", fn)
	if err != nil {
		t.Fatalf("post: %v", err)
	}

	info, err := s.GetDocInfo(id, "doc1")
	if err != nil {
		t.Fatalf("get doc info: %v", err)
	}
	if info.CurrentRev != rev {
		t.Fatalf("expected current rev %s, got %s", rev, info.CurrentRev)
	}

	var seqs []uint64
	s.ChangesSince(id, 0, func(seq uint64, info store.DocInfo) error {
		seqs = append(seqs, seq)
		return nil
	})
	if len(seqs) != 1 || seqs[0] != 1 {
		t.Fatalf("expected one change at seq 1, got %v", seqs)
	}
}

// TestScenarioS2Conflict mirrors spec scenario S2.
func TestScenarioS2Conflict(t *testing.T) {
	tr, s, id, _ := newTestTransactor(t)

	rev1 := put(t, tr, "doc1", map[string]interface{}{"v": 1}, false)

	fn, _ := BuildPut(mustJSON(map[string]interface{}{"v": 2}), PutOptions{})
	_, err := tr.UpdateDoc(context.Background(), "doc1", fn)
	if !barrelerr.Is(err, barrelerr.DocExists) {
		t.Fatalf("expected doc_exists conflict, got %v", err)
	}

	rev2 := put(t, tr, "doc1", map[string]interface{}{"_rev": rev1, "v": 2}, false)

	var seqs []uint64
	s.ChangesSince(id, 1, func(seq uint64, info store.DocInfo) error {
		seqs = append(seqs, seq)
		return nil
	})
	if len(seqs) != 1 || seqs[0] != 2 {
		t.Fatalf("expected exactly one row at seq 2, got %v (rev2=%s)", seqs, rev2)
	}
}

// TestScenarioS3ReplicationGraft mirrors spec scenario S3.
func TestScenarioS3ReplicationGraft(t *testing.T) {
	tr, s, id, _ := newTestTransactor(t)

	fn, err := BuildPutRev(mustJSON(map[string]interface{}{"v": 9}), []string{"3-c", "2-b", "1-a"})
	if err != nil {
		t.Fatalf("build put_rev: %v", err)
	}
	rev, err := tr.UpdateDoc(context.Background(), "doc1", fn)
	if err != nil {
		t.Fatalf("put_rev: %v", err)
	}
	if rev != "3-c" {
		t.Fatalf("expected rev 3-c, got %s", rev)
	}

	info, err := s.GetDocInfo(id, "doc1")
	if err != nil {
		t.Fatalf("get doc info: %v", err)
	}
	if len(info.RevTree) != 3 {
		t.Fatalf("expected 3 revtree entries, got %d", len(info.RevTree))
	}
	if info.CurrentRev != "3-c" {
		t.Fatalf("expected current rev 3-c, got %s", info.CurrentRev)
	}
	if info.Branched || info.Conflict {
		t.Fatalf("expected no branch/conflict, got branched=%v conflict=%v", info.Branched, info.Conflict)
	}
}

// TestScenarioS4Branching mirrors spec scenario S4.
func TestScenarioS4Branching(t *testing.T) {
	tr, s, id, _ := newTestTransactor(t)

	put(t, tr, "doc1", map[string]interface{}{"v": 1}, false)

	fnX, _ := BuildPutRev(mustJSON(map[string]interface{}{"v": "2b"}), []string{"2-x", "1-h1"})
	fnY, _ := BuildPutRev(mustJSON(map[string]interface{}{"v": "2y"}), []string{"2-y", "1-h1"})

	if _, err := tr.UpdateDoc(context.Background(), "doc1", fnX); err != nil {
		t.Fatalf("put_rev x: %v", err)
	}
	if _, err := tr.UpdateDoc(context.Background(), "doc1", fnY); err != nil {
		t.Fatalf("put_rev y: %v", err)
	}

	info, err := s.GetDocInfo(id, "doc1")
	if err != nil {
		t.Fatalf("get doc info: %v", err)
	}
	if !info.Branched || !info.Conflict {
		t.Fatalf("expected branched and conflict, got %+v", info)
	}
}

// TestScenarioS5TombstoneRevive mirrors spec scenario S5.
func TestScenarioS5TombstoneRevive(t *testing.T) {
	tr, s, id, _ := newTestTransactor(t)

	rev1 := put(t, tr, "doc1", map[string]interface{}{"v": 1}, false)

	fnDel, _ := BuildDelete(rev1)
	rev2, err := tr.UpdateDoc(context.Background(), "doc1", fnDel)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}

	info, err := s.GetDocInfo(id, "doc1")
	if err != nil {
		t.Fatalf("get doc info after delete: %v", err)
	}
	if !info.Deleted {
		t.Fatalf("expected document to be deleted")
	}

	rev3 := put(t, tr, "doc1", map[string]interface{}{"v": 3}, false)

	info, err = s.GetDocInfo(id, "doc1")
	if err != nil {
		t.Fatalf("get doc info after revive: %v", err)
	}
	if info.Deleted {
		t.Fatalf("expected document to be live after revive")
	}
	if info.Conflict {
		t.Fatalf("expected no conflict after revive")
	}
	if info.RevTree[rev3].Parent != rev2 {
		t.Fatalf("expected revived revision %s to chain onto the tombstone %s, got parent %s",
			rev3, rev2, info.RevTree[rev3].Parent)
	}
}

// TestPutRevIdempotent mirrors spec law L3.
func TestPutRevIdempotent(t *testing.T) {
	tr, s, id, _ := newTestTransactor(t)

	fn1, _ := BuildPutRev(mustJSON(map[string]interface{}{"v": 1}), []string{"1-a"})
	if _, err := tr.UpdateDoc(context.Background(), "doc1", fn1); err != nil {
		t.Fatalf("first put_rev: %v", err)
	}
	before, _ := s.GetDocInfo(id, "doc1")

	fn2, _ := BuildPutRev(mustJSON(map[string]interface{}{"v": 1}), []string{"1-a"})
	if _, err := tr.UpdateDoc(context.Background(), "doc1", fn2); err != nil {
		t.Fatalf("replayed put_rev: %v", err)
	}
	after, _ := s.GetDocInfo(id, "doc1")

	if len(before.RevTree) != len(after.RevTree) {
		t.Fatalf("expected tree unchanged by replay, got %d vs %d entries", len(before.RevTree), len(after.RevTree))
	}
}

func mustJSON(v map[string]interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
