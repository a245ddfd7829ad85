package transactor

import (
	"encoding/json"

	"github.com/azmodb/barrel/barrelerr"
)

// parsedDoc is the result of decoding a caller-supplied document body.
type parsedDoc struct {
	Body    map[string]interface{} // full decoded body, including _id/_rev/_deleted
	Rev     string
	Deleted bool
}

// parseDoc decodes raw into a parsedDoc. It rejects anything that is not
// a JSON object.
func parseDoc(raw []byte) (parsedDoc, error) {
	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return parsedDoc{}, barrelerr.BadDocf("document body is not a JSON object: %v", err)
	}

	rev, _ := body["_rev"].(string)
	deleted, _ := body["_deleted"].(bool)
	return parsedDoc{Body: body, Rev: rev, Deleted: deleted}, nil
}

// withoutRev returns a shallow copy of body with _rev removed, the input
// to revid.New per the specification's "canonical_body_without_rev".
func withoutRev(body map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(body))
	for k, v := range body {
		if k == "_rev" {
			continue
		}
		out[k] = v
	}
	return out
}

// stamp returns body (already without _rev) with _id and the new _rev
// set, ready to be re-marshaled as the persisted/returned document.
func stamp(body map[string]interface{}, id, rev string) map[string]interface{} {
	out := make(map[string]interface{}, len(body)+2)
	for k, v := range body {
		out[k] = v
	}
	out["_id"] = id
	out["_rev"] = rev
	return out
}
