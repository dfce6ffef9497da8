package dynamolock

import "github.com/google/uuid"

// newIdentity generates a fresh random owner identity so that restarts
// produce new identities (spec.md §4.5 and GLOSSARY "Owner identity"). None
// of this package's CAS protocol requires identities to be globally unique
// beyond "vanishingly unlikely to collide"; a v4 UUID's 122 random bits
// comfortably clears that bar.
func newIdentity() []byte {
	id := uuid.New()
	return id[:]
}

func identityString(b []byte) string {
	id, err := uuid.FromBytes(b)
	if err != nil {
		return string(b)
	}
	return id.String()
}
