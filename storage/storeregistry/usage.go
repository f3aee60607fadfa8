package storeregistry

// Usage restricts which programs accept a backend.
type Usage uint8

const (
	// UsageNode marks a backend that may hold a replica's packets.
	UsageNode Usage = 1 << iota
	// UsageTest marks a backend suitable for isolated tests.
	UsageTest
)

func (u Usage) allows(want Usage) bool { return u&want != 0 }
