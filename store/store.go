// Package store implements the ordered key/value abstraction the
// transactor and database façade are built on: per-database doc-info,
// doc-body and by-sequence namespaces, plus a side namespace for system
// documents, all backed by a single embedded github.com/boltdb/bolt
// database per configured store.
//
// The specification describes the three (plus system-doc) namespaces as
// key prefixes over one flat ordered keyspace ("D|<docid>", "B|<docid>|
// <rev>", ...). boltdb's native namespacing primitive is the nested
// bucket, which gives the same separation without string-prefix
// parsing, so each open database gets its own top-level bucket holding
// four sub-buckets ("D", "B", "S", "Y") plus a "meta" sub-bucket — a direct,
// idiomatic translation of the same three-plus-one namespace design.
package store

import (
	"encoding/binary"
	"sort"
	"strings"

	"github.com/boltdb/bolt"

	"github.com/azmodb/barrel/barrelerr"
	"github.com/azmodb/barrel/pb"
	"github.com/azmodb/barrel/revtree"
)

// DBID identifies one open database within a store.
type DBID uint64

var (
	registryBucket = []byte("registry") // name -> DBID, and the DBID allocation counter
	nextDBIDKey    = []byte("next_dbid")

	docInfoBucket = []byte("D")
	bodyBucket    = []byte("B")
	bySeqBucket   = []byte("S")
	sysDocBucket  = []byte("Y")
	metaBucket    = []byte("meta")

	lastUpdateSeqKey = []byte("last_update_seq")
)

// DocInfo is the in-memory representation of a document's metadata: its
// cached winning-revision fields plus its full revision tree.
type DocInfo struct {
	ID         string
	CurrentRev string
	Branched   bool
	Conflict   bool
	Deleted    bool
	RevTree    revtree.Tree
	UpdateSeq  uint64
}

// Empty returns a fresh DocInfo for a document that does not yet exist,
// per the transactor's UpdateFn contract.
func Empty(id string) DocInfo {
	return DocInfo{ID: id, RevTree: revtree.New()}
}

func toRecord(info DocInfo) *pb.DocInfoRecord {
	revs := make([]*pb.RevInfoRecord, 0, len(info.RevTree))
	ids := make([]string, 0, len(info.RevTree))
	for id := range info.RevTree {
		ids = append(ids, id)
	}
	sort.Strings(ids) // deterministic wire encoding
	for _, id := range ids {
		r := info.RevTree[id]
		revs = append(revs, &pb.RevInfoRecord{Id: r.ID, Parent: r.Parent, Deleted: r.Deleted})
	}

	return &pb.DocInfoRecord{
		Id:         info.ID,
		CurrentRev: info.CurrentRev,
		Branched:   info.Branched,
		Conflict:   info.Conflict,
		Deleted:    info.Deleted,
		UpdateSeq:  info.UpdateSeq,
		Revs:       revs,
	}
}

func fromRecord(r *pb.DocInfoRecord) DocInfo {
	tree := revtree.New()
	for _, rr := range r.Revs {
		tree = revtree.Add(revtree.Info{ID: rr.Id, Parent: rr.Parent, Deleted: rr.Deleted}, tree)
	}
	return DocInfo{
		ID:         r.Id,
		CurrentRev: r.CurrentRev,
		Branched:   r.Branched,
		Conflict:   r.Conflict,
		Deleted:    r.Deleted,
		RevTree:    tree,
		UpdateSeq:  r.UpdateSeq,
	}
}

// Store wraps one embedded KV engine instance. Multiple independent
// databases may be opened within the same Store, each in its own
// top-level bucket.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the boltdb file at path.
func Open(path string, opts *bolt.Options) (*Store, error) {
	db, err := bolt.Open(path, 0600, opts)
	if err != nil {
		return nil, barrelerr.Wrap(err, "opening store")
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(registryBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, barrelerr.Wrap(err, "initializing store registry")
	}
	return &Store{db: db}, nil
}

// Close releases the underlying KV engine handle.
func (s *Store) Close() error { return s.db.Close() }

func dbidKey(id DBID) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(id))
	return b[:]
}

// OpenDB returns the DBID and current update_seq for name, creating the
// database if createIfMissing is true and it does not already exist.
func (s *Store) OpenDB(name string, createIfMissing bool) (DBID, uint64, error) {
	var id DBID
	var seq uint64

	err := s.db.Update(func(tx *bolt.Tx) error {
		reg := tx.Bucket(registryBucket)
		if data := reg.Get([]byte(name)); data != nil {
			id = DBID(binary.BigEndian.Uint64(data))
			return nil
		}
		if !createIfMissing {
			return barrelerr.NotFoundf("database %q", name)
		}

		next := uint64(1)
		if data := reg.Get(nextDBIDKey); data != nil {
			next = binary.BigEndian.Uint64(data) + 1
		}
		var nextBuf [8]byte
		binary.BigEndian.PutUint64(nextBuf[:], next)
		if err := reg.Put(nextDBIDKey, nextBuf[:]); err != nil {
			return err
		}
		id = DBID(next)
		if err := reg.Put([]byte(name), dbidKey(id)); err != nil {
			return err
		}

		root, err := tx.CreateBucket(dbidKey(id))
		if err != nil {
			return err
		}
		for _, name := range [][]byte{docInfoBucket, bodyBucket, bySeqBucket, sysDocBucket, metaBucket} {
			if _, err := root.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if be, ok := err.(*barrelerr.Error); ok {
			return 0, 0, be
		}
		return 0, 0, barrelerr.Wrap(err, "opening database "+name)
	}

	seq, err = s.LastUpdateSeq(id)
	if err != nil {
		return 0, 0, err
	}
	return id, seq, nil
}

// CleanDB deletes all namespaces for id and removes it from the
// registry.
func (s *Store) CleanDB(name string, id DBID) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(dbidKey(id)); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		reg := tx.Bucket(registryBucket)
		return reg.Delete([]byte(name))
	})
	if err != nil {
		return barrelerr.Wrap(err, "cleaning database")
	}
	return nil
}

func (s *Store) root(tx *bolt.Tx, id DBID) (*bolt.Bucket, error) {
	root := tx.Bucket(dbidKey(id))
	if root == nil {
		return nil, barrelerr.NotFoundf("database id %d", id)
	}
	return root, nil
}

// GetDocInfo returns the current metadata for docID.
func (s *Store) GetDocInfo(id DBID, docID string) (DocInfo, error) {
	var info DocInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		root, err := s.root(tx, id)
		if err != nil {
			return err
		}
		data := root.Bucket(docInfoBucket).Get([]byte(docID))
		if data == nil {
			return barrelerr.NotFoundf("document %q", docID)
		}
		rec := &pb.DocInfoRecord{}
		if err := pb.Unmarshal(data, rec); err != nil {
			return barrelerr.Wrap(err, "decoding doc info")
		}
		info = fromRecord(rec)
		return nil
	})
	return info, err
}

// bodyKey builds the B-namespace key for (docID, rev).
func bodyKey(docID, rev string) []byte {
	return []byte(docID + "\x00" + rev)
}

// GetDocBody returns the raw JSON body stored at (docID, rev).
func (s *Store) GetDocBody(id DBID, docID, rev string) ([]byte, error) {
	var body []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		root, err := s.root(tx, id)
		if err != nil {
			return err
		}
		data := root.Bucket(bodyBucket).Get(bodyKey(docID, rev))
		if data == nil {
			return barrelerr.NotFoundf("document %q at revision %q", docID, rev)
		}
		body = append([]byte(nil), data...)
		return nil
	})
	return body, err
}

// FoldOptions bound a FoldByID scan.
type FoldOptions struct {
	StartKey string
	EndKey   string
	Max      int // 0 means unbounded
}

// FoldByID iterates doc-infos in DocID order within [StartKey, EndKey],
// invoking fn for each, stopping early if fn returns an error or Max
// results have been yielded. Per open question O2, no skip/offset
// pagination is implemented, and a Max-truncated scan does not report
// how many rows exist beyond the cap.
func (s *Store) FoldByID(id DBID, opts FoldOptions, fn func(DocInfo) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		root, err := s.root(tx, id)
		if err != nil {
			return err
		}
		c := root.Bucket(docInfoBucket).Cursor()

		var k, v []byte
		if opts.StartKey != "" {
			k, v = c.Seek([]byte(opts.StartKey))
		} else {
			k, v = c.First()
		}

		n := 0
		for ; k != nil; k, v = c.Next() {
			if opts.EndKey != "" && string(k) > opts.EndKey {
				break
			}
			rec := &pb.DocInfoRecord{}
			if err := pb.Unmarshal(v, rec); err != nil {
				return barrelerr.Wrap(err, "decoding doc info")
			}
			if err := fn(fromRecord(rec)); err != nil {
				return err
			}
			n++
			if opts.Max > 0 && n >= opts.Max {
				break
			}
		}
		return nil
	})
}

// ChangesSince iterates by-sequence entries with seq >= since in
// ascending order.
func (s *Store) ChangesSince(id DBID, since uint64, fn func(seq uint64, info DocInfo) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		root, err := s.root(tx, id)
		if err != nil {
			return err
		}
		c := root.Bucket(bySeqBucket).Cursor()

		var start [8]byte
		binary.BigEndian.PutUint64(start[:], since)
		for k, v := c.Seek(start[:]); k != nil; k, v = c.Next() {
			seq := binary.BigEndian.Uint64(k)
			rec := &pb.DocInfoRecord{}
			if err := pb.Unmarshal(v, rec); err != nil {
				return barrelerr.Wrap(err, "decoding by-seq entry")
			}
			if err := fn(seq, fromRecord(rec)); err != nil {
				return err
			}
		}
		return nil
	})
}

// LastUpdateSeq returns the persisted high-water mark for id.
func (s *Store) LastUpdateSeq(id DBID) (uint64, error) {
	var seq uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		root, err := s.root(tx, id)
		if err != nil {
			return err
		}
		data := root.Bucket(metaBucket).Get(lastUpdateSeqKey)
		if data != nil {
			seq = binary.BigEndian.Uint64(data)
		}
		return nil
	})
	return seq, err
}

// Commit persists one transactor commit atomically: the new DocInfo, the
// new body at its new revision, a fresh by-seq snapshot, the removal of
// the previous by-seq row (if any) and the bumped update_seq.
func (s *Store) Commit(id DBID, docID string, info DocInfo, newRev string, body []byte, newSeq uint64, oldSeq uint64, hasOldSeq bool) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		root, err := s.root(tx, id)
		if err != nil {
			return err
		}

		data := pb.MustMarshal(toRecord(info))
		if err := root.Bucket(docInfoBucket).Put([]byte(docID), data); err != nil {
			return err
		}
		if body != nil {
			if err := root.Bucket(bodyBucket).Put(bodyKey(docID, newRev), body); err != nil {
				return err
			}
		}

		var seqKey [8]byte
		binary.BigEndian.PutUint64(seqKey[:], newSeq)
		if err := root.Bucket(bySeqBucket).Put(seqKey[:], data); err != nil {
			return err
		}
		if hasOldSeq && oldSeq != newSeq {
			var oldKey [8]byte
			binary.BigEndian.PutUint64(oldKey[:], oldSeq)
			if err := root.Bucket(bySeqBucket).Delete(oldKey[:]); err != nil {
				return err
			}
		}

		var seqBuf [8]byte
		binary.BigEndian.PutUint64(seqBuf[:], newSeq)
		return root.Bucket(metaBucket).Put(lastUpdateSeqKey, seqBuf[:])
	})
	if err != nil {
		return barrelerr.Wrap(err, "committing document "+docID)
	}
	return nil
}

// WriteSystemDoc stores body under docID in the system-doc namespace,
// untouched by the revision-tree machinery.
func (s *Store) WriteSystemDoc(id DBID, docID string, body []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		root, err := s.root(tx, id)
		if err != nil {
			return err
		}
		return root.Bucket(sysDocBucket).Put([]byte(docID), body)
	})
	if err != nil {
		return barrelerr.Wrap(err, "writing system doc "+docID)
	}
	return nil
}

// ReadSystemDoc returns the body stored under docID in the system-doc
// namespace.
func (s *Store) ReadSystemDoc(id DBID, docID string) ([]byte, error) {
	var body []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		root, err := s.root(tx, id)
		if err != nil {
			return err
		}
		data := root.Bucket(sysDocBucket).Get([]byte(docID))
		if data == nil {
			return barrelerr.NotFoundf("system document %q", docID)
		}
		body = append([]byte(nil), data...)
		return nil
	})
	return body, err
}

// DeleteSystemDoc removes docID from the system-doc namespace.
func (s *Store) DeleteSystemDoc(id DBID, docID string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		root, err := s.root(tx, id)
		if err != nil {
			return err
		}
		return root.Bucket(sysDocBucket).Delete([]byte(docID))
	})
	if err != nil {
		return barrelerr.Wrap(err, "deleting system doc "+docID)
	}
	return nil
}

// splitBodyKey is used by tests and diagnostics to recover (docID, rev)
// from a raw B-namespace key.
func splitBodyKey(key []byte) (docID, rev string) {
	parts := strings.SplitN(string(key), "\x00", 2)
	if len(parts) != 2 {
		return string(key), ""
	}
	return parts[0], parts[1]
}
