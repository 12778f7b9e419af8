package model

// KDFParams holds Argon2id cost parameters.
type KDFParams struct {
	Time   uint32
	MemKiB uint32
	Par    uint8
}

// DefaultKDFParams are the production cost parameters: 32 MiB, four passes,
// a single lane.
var DefaultKDFParams = KDFParams{Time: 4, MemKiB: 32 * 1024, Par: 1}
