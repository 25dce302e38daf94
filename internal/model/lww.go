package model

// LWWRecord is the (timestamp, node) tuple recorded per document under
// last-writer-wins conflict resolution. Total order is lexicographic:
// timestamp first, then node ID as a tie-break.
type LWWRecord struct {
	TimestampMs uint64
	NodeID      string
}

// Less reports whether r sorts strictly before other under the LWW total
// order.
func (r LWWRecord) Less(other LWWRecord) bool {
	if r.TimestampMs != other.TimestampMs {
		return r.TimestampMs < other.TimestampMs
	}
	return r.NodeID < other.NodeID
}

// GreaterOrEqual reports whether r is >= other under the LWW total order.
func (r LWWRecord) GreaterOrEqual(other LWWRecord) bool {
	return !r.Less(other)
}

// Max returns the larger of r and other under the LWW total order.
func (r LWWRecord) Max(other LWWRecord) LWWRecord {
	if r.Less(other) {
		return other
	}
	return r
}
