package field

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// listSeparator joins list elements before hashing. Field values are single
// line strings, tabs never occur inside them.
const listSeparator = "\t"

// Fingerprint is the hex encoded digest of a canonicalized field value.
// The zero value is Absent and never equals a computed digest.
type Fingerprint string

// Absent is the fingerprint of a missing or empty value.
const Absent Fingerprint = ""

func (f Fingerprint) IsAbsent() bool { return f == Absent }

func (f Fingerprint) String() string {
	if f == Absent {
		return "<absent>"
	}
	return string(f)
}

// Short returns the first 8 characters, enough for log lines.
func (f Fingerprint) Short() string {
	if len(f) <= 8 {
		return f.String()
	}
	return string(f[:8])
}

// Hash fingerprints a value in the form a store keeps it: empty elements are
// dropped before hashing. Absent values hash to Absent; lists are hashed in
// order, so [a b] and [b a] differ.
func Hash(v Value) Fingerprint {
	if v.IsAbsent() {
		return Absent
	}
	return sum(strings.Join(v.NonEmpty(), listSeparator))
}

func sum(s string) Fingerprint {
	digest := md5.Sum([]byte(s))
	return Fingerprint(hex.EncodeToString(digest[:]))
}
