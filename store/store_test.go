package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/boltdb/bolt"

	"github.com/azmodb/barrel/barrelerr"
	"github.com/azmodb/barrel/revtree"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "barrel.db")
	s, err := Open(path, &bolt.Options{Timeout: time.Second})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenDBCreateIfMissing(t *testing.T) {
	s := openTestStore(t)

	id, seq, err := s.OpenDB("test", true)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if seq != 0 {
		t.Fatalf("expected fresh database to have seq 0, got %d", seq)
	}

	id2, _, err := s.OpenDB("test", false)
	if err != nil {
		t.Fatalf("reopen db: %v", err)
	}
	if id2 != id {
		t.Fatalf("expected same DBID on reopen, got %d and %d", id, id2)
	}
}

func TestOpenDBNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, _, err := s.OpenDB("missing", false); !barrelerr.Is(err, barrelerr.NotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestCommitAndGetDocInfo(t *testing.T) {
	s := openTestStore(t)
	id, _, err := s.OpenDB("test", true)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	tree := revtree.Add(revtree.Info{ID: "1-a"}, revtree.New())
	info := DocInfo{ID: "doc1", CurrentRev: "1-a", RevTree: tree, UpdateSeq: 1}
	body := []byte(`{"_id":"doc1","_rev":"1-a","v":1}`)

	if err := s.Commit(id, "doc1", info, "1-a", body, 1, 0, false); err != nil {
		t.Fatalf("commit: %v", err)
	}

	got, err := s.GetDocInfo(id, "doc1")
	if err != nil {
		t.Fatalf("get doc info: %v", err)
	}
	if got.CurrentRev != "1-a" {
		t.Fatalf("expected current rev 1-a, got %s", got.CurrentRev)
	}
	if !revtree.Contains("1-a", got.RevTree) {
		t.Fatalf("expected rev tree to contain 1-a")
	}

	gotBody, err := s.GetDocBody(id, "doc1", "1-a")
	if err != nil {
		t.Fatalf("get doc body: %v", err)
	}
	if string(gotBody) != string(body) {
		t.Fatalf("expected body round trip, got %s", gotBody)
	}

	seq, err := s.LastUpdateSeq(id)
	if err != nil {
		t.Fatalf("last update seq: %v", err)
	}
	if seq != 1 {
		t.Fatalf("expected last update seq 1, got %d", seq)
	}
}

func TestCommitRemovesOldBySeqRow(t *testing.T) {
	s := openTestStore(t)
	id, _, _ := s.OpenDB("test", true)

	tree1 := revtree.Add(revtree.Info{ID: "1-a"}, revtree.New())
	info1 := DocInfo{ID: "doc1", CurrentRev: "1-a", RevTree: tree1, UpdateSeq: 1}
	if err := s.Commit(id, "doc1", info1, "1-a", []byte(`{}`), 1, 0, false); err != nil {
		t.Fatalf("commit 1: %v", err)
	}

	tree2 := revtree.Add(revtree.Info{ID: "2-b", Parent: "1-a"}, tree1.Clone())
	info2 := DocInfo{ID: "doc1", CurrentRev: "2-b", RevTree: tree2, UpdateSeq: 2}
	if err := s.Commit(id, "doc1", info2, "2-b", []byte(`{}`), 2, 1, true); err != nil {
		t.Fatalf("commit 2: %v", err)
	}

	var seqs []uint64
	err := s.ChangesSince(id, 0, func(seq uint64, info DocInfo) error {
		seqs = append(seqs, seq)
		return nil
	})
	if err != nil {
		t.Fatalf("changes since: %v", err)
	}
	if len(seqs) != 1 || seqs[0] != 2 {
		t.Fatalf("expected exactly one by-seq row at seq 2, got %v", seqs)
	}
}

func TestChangesSinceResumeOffsets(t *testing.T) {
	s := openTestStore(t)
	id, _, _ := s.OpenDB("test", true)

	for i, docID := range []string{"doc1", "doc2"} {
		tree := revtree.Add(revtree.Info{ID: "1-a"}, revtree.New())
		seq := uint64(i + 1)
		info := DocInfo{ID: docID, CurrentRev: "1-a", RevTree: tree, UpdateSeq: seq}
		if err := s.Commit(id, docID, info, "1-a", []byte(`{}`), seq, 0, false); err != nil {
			t.Fatalf("commit %s: %v", docID, err)
		}
	}

	var fromZero []uint64
	s.ChangesSince(id, 0, func(seq uint64, info DocInfo) error {
		fromZero = append(fromZero, seq)
		return nil
	})
	if len(fromZero) != 2 {
		t.Fatalf("expected 2 rows from seq 0, got %v", fromZero)
	}

	var fromOne []uint64
	s.ChangesSince(id, 2, func(seq uint64, info DocInfo) error {
		fromOne = append(fromOne, seq)
		return nil
	})
	if len(fromOne) != 1 || fromOne[0] != 2 {
		t.Fatalf("expected 1 row from seq 2 (inclusive seek), got %v", fromOne)
	}
}

func TestSystemDocLifecycle(t *testing.T) {
	s := openTestStore(t)
	id, _, _ := s.OpenDB("test", true)

	if err := s.WriteSystemDoc(id, "_local/checkpoint", []byte(`{"seq":1}`)); err != nil {
		t.Fatalf("write system doc: %v", err)
	}
	got, err := s.ReadSystemDoc(id, "_local/checkpoint")
	if err != nil {
		t.Fatalf("read system doc: %v", err)
	}
	if string(got) != `{"seq":1}` {
		t.Fatalf("unexpected system doc body: %s", got)
	}

	if err := s.DeleteSystemDoc(id, "_local/checkpoint"); err != nil {
		t.Fatalf("delete system doc: %v", err)
	}
	if _, err := s.ReadSystemDoc(id, "_local/checkpoint"); !barrelerr.Is(err, barrelerr.NotFound) {
		t.Fatalf("expected not_found after delete, got %v", err)
	}
}

func TestCleanDB(t *testing.T) {
	s := openTestStore(t)
	id, _, _ := s.OpenDB("test", true)

	if err := s.CleanDB("test", id); err != nil {
		t.Fatalf("clean db: %v", err)
	}
	if _, _, err := s.OpenDB("test", false); !barrelerr.Is(err, barrelerr.NotFound) {
		t.Fatalf("expected database to be gone after clean, got %v", err)
	}
}

func TestSplitBodyKey(t *testing.T) {
	docID, rev := splitBodyKey(bodyKey("doc1", "1-a"))
	if docID != "doc1" || rev != "1-a" {
		t.Fatalf("expected (doc1, 1-a), got (%s, %s)", docID, rev)
	}
}
