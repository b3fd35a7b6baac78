package notify

import "github.com/ayusman/safeschool/internal/ident"

// Snapshot is a point-in-time copy of the guardian bindings, keyed by
// normalized student id. Bindings created after the snapshot was taken are
// not visible.
type Snapshot map[string][]int64

// Lookup returns the destinations bound to studentID. The id is normalized
// first, so a decomposed or padded gallery label still finds its guardians.
func (s Snapshot) Lookup(studentID string) ([]int64, error) {
	return s[ident.Normalize(studentID)], nil
}
