package experiment

import (
	"crypto/sha256"
	"encoding/binary"
)

// Assignment method labels reported on AnalyticsEvent.AssignmentMethod, per
// spec §4.6.1, so downstream analytics can weight results by which input
// actually drove the bucketing decision.
const (
	AssignmentMethodUserToken = "user_token"
	AssignmentMethodSessionID = "session_id"
	AssignmentMethodQueryID   = "query_id"
)

// ResolveBucketKey applies the fallback order the search executor uses to
// pick an experiment bucketing key (spec §4.7 step 2): userToken, then
// sessionID, then the generated queryID. It returns the key alongside which
// input supplied it.
func ResolveBucketKey(userToken, sessionID, queryID string) (key, method string) {
	if userToken != "" {
		return userToken, AssignmentMethodUserToken
	}
	if sessionID != "" {
		return sessionID, AssignmentMethodSessionID
	}
	return queryID, AssignmentMethodQueryID
}

// Assign deterministically buckets a request into "control" or "variant"
// for exp, per spec §4.6.1: hash(experimentID + bucketKey) mod 2^32,
// compared against trafficSplit, so the same caller always lands in the
// same arm for the lifetime of the experiment. bucketKey should be the
// caller's userToken if present, else sessionID, else the queryID — the
// same fallback order the search executor uses to resolve experiment
// context (spec §4.7 step 2).
func Assign(experimentID, bucketKey string, trafficSplit float64) string {
	h := sha256.Sum256([]byte(experimentID + ":" + bucketKey))
	bucket := binary.BigEndian.Uint32(h[:4])
	threshold := uint32(trafficSplit * float64(^uint32(0)))
	if bucket < threshold {
		return "variant"
	}
	return "control"
}
