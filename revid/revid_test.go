package revid

import "testing"

func TestParseRoundTrip(t *testing.T) {
	rev := New(1, "", map[string]interface{}{"v": float64(1)})
	id, err := Parse(rev)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id.Generation != 1 {
		t.Fatalf("expected generation 1, got %d", id.Generation)
	}
	if id.String() != rev {
		t.Fatalf("expected round trip %q, got %q", rev, id.String())
	}
}

func TestParseEmpty(t *testing.T) {
	id, err := Parse("")
	if err != nil {
		t.Fatalf("parse empty: %v", err)
	}
	if !id.Empty() {
		t.Fatalf("expected empty id")
	}
}

func TestParseMalformed(t *testing.T) {
	cases := []string{"abc", "1-", "-abc", "0-abc", "-1-abc"}
	for _, c := range cases {
		if _, err := Parse(c); err == nil {
			t.Fatalf("expected parse error for %q", c)
		}
	}
}

func TestNewDeterministic(t *testing.T) {
	body := map[string]interface{}{"v": float64(2), "name": "x"}
	a := New(3, "2-abc", body)
	b := New(3, "2-abc", body)
	if a != b {
		t.Fatalf("expected deterministic digest, got %q and %q", a, b)
	}

	c := New(3, "2-abd", body)
	if a == c {
		t.Fatalf("expected different parent to change digest")
	}
}

func TestNewKeyOrderIndependent(t *testing.T) {
	a := New(1, "", map[string]interface{}{"a": float64(1), "b": float64(2)})
	b := New(1, "", map[string]interface{}{"b": float64(2), "a": float64(1)})
	if a != b {
		t.Fatalf("expected key-order independent digest, got %q and %q", a, b)
	}
}
