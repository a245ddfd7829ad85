// Package revid parses and mints Barrel revision identifiers.
//
// A RevID is a printable string "<generation>-<hash>" where generation
// is a positive integer and hash is an opaque lowercase hex digest
// minted from the revision's generation, parent and body.
package revid

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/azmodb/barrel/barrelerr"
)

// ID is a parsed revision identifier.
type ID struct {
	Generation int
	Hash       string
}

// String renders the canonical "<generation>-<hash>" form.
func (id ID) String() string {
	if id.Generation == 0 && id.Hash == "" {
		return ""
	}
	return strconv.Itoa(id.Generation) + "-" + id.Hash
}

// Empty reports whether id is the zero value, i.e. there is no revision.
func (id ID) Empty() bool { return id.Generation == 0 && id.Hash == "" }

// Parse splits a RevID of the form "<generation>-<hash>" into its parts.
// Parse("") returns the zero ID and a nil error: an empty revision is a
// valid "no revision yet" marker, not a malformed one.
func Parse(rev string) (ID, error) {
	if rev == "" {
		return ID{}, nil
	}
	idx := strings.IndexByte(rev, '-')
	if idx <= 0 || idx == len(rev)-1 {
		return ID{}, barrelerr.BadDocf("malformed revision id %q", rev)
	}
	gen, err := strconv.Atoi(rev[:idx])
	if err != nil || gen <= 0 {
		return ID{}, barrelerr.BadDocf("malformed revision generation %q", rev)
	}
	hash := rev[idx+1:]
	return ID{Generation: gen, Hash: hash}, nil
}

// MustParse is like Parse but panics on error. It exists for tests and
// for call sites that have already validated the revision.
func MustParse(rev string) ID {
	id, err := Parse(rev)
	if err != nil {
		panic(err)
	}
	return id
}

// New mints a fresh RevID for generation newGen, with parent parentRev,
// deterministically derived from (newGen, parentRev, body). body must
// already have its _rev field removed; New does not strip it.
//
// The digest is a SHA-256 hash of a canonical encoding of the triple, so
// two writers who independently compute the same (generation, parent,
// body) mint the same RevID, while divergent histories collide only
// with negligible probability.
func New(newGen int, parentRev string, body map[string]interface{}) string {
	h := sha256.New()
	h.Write([]byte(strconv.Itoa(newGen)))
	h.Write([]byte{0})
	h.Write([]byte(parentRev))
	h.Write([]byte{0})
	h.Write(canonicalize(body))
	return strconv.Itoa(newGen) + "-" + hex.EncodeToString(h.Sum(nil))
}

// canonicalize produces a stable byte encoding of body: object keys
// sorted, no insignificant whitespace, nested objects recursively
// canonicalized. encoding/json.Marshal on a map already sorts keys, but
// we encode explicitly to keep the format independent of that
// implementation detail and documented in one place, since replication
// across implementations depends on this exact byte sequence.
func canonicalize(v interface{}) []byte {
	var buf []byte
	buf = appendCanonical(buf, v)
	return buf
}

func appendCanonical(buf []byte, v interface{}) []byte {
	switch t := v.(type) {
	case nil:
		return append(buf, "null"...)
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf = append(buf, '{')
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			kb, _ := json.Marshal(k)
			buf = append(buf, kb...)
			buf = append(buf, ':')
			buf = appendCanonical(buf, t[k])
		}
		return append(buf, '}')
	case []interface{}:
		buf = append(buf, '[')
		for i, e := range t {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = appendCanonical(buf, e)
		}
		return append(buf, ']')
	default:
		b, err := json.Marshal(t)
		if err != nil {
			// v came from a json.Unmarshal into interface{} or a
			// caller-built map; anything that reaches here is one of
			// the types encoding/json already knows how to marshal.
			panic("revid: cannot canonicalize value: " + err.Error())
		}
		return append(buf, b...)
	}
}

// Canonicalize exposes canonicalize for callers outside this package
// that need the exact same byte sequence used for minting.
func Canonicalize(v interface{}) []byte { return canonicalize(v) }
