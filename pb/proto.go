//go:generate protoc --proto_path=. --go_out=. barrel.proto

package pb

import "github.com/gogo/protobuf/proto"

// MustMarshal marshals m, panicking on error. Marshal only fails for
// malformed messages, which would indicate a bug in this package, not a
// recoverable runtime condition.
func MustMarshal(m proto.Message) []byte {
	data, err := proto.Marshal(m)
	if err != nil {
		panic("pb: marshal failed: " + err.Error())
	}
	return data
}

// MustUnmarshal unmarshals data into m, panicking on error. Callers
// that read records they wrote themselves treat corruption as a bug,
// not a recoverable runtime condition.
func MustUnmarshal(data []byte, m proto.Message) {
	if err := proto.Unmarshal(data, m); err != nil {
		panic("pb: unmarshal failed: " + err.Error())
	}
}

// Unmarshal unmarshals data into m, returning any error to the caller.
// Used by the store package when decoding persisted records, so that
// corruption is reported as a storage_error rather than a panic.
func Unmarshal(data []byte, m proto.Message) error {
	return proto.Unmarshal(data, m)
}
