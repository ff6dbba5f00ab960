// Package session holds the in-memory state of mock interviews.
//
// A [Record] is the aggregate for one interview: its immutable [Config], the
// append-only transcript of [Utterance] values, the interviewer turn counter,
// the protocol [Phase], the cached persona, and the final [Evaluation]. Every
// mutation is a guarded transition on the record so that the phase ordering
// greeting → answers → evaluating → done can never be violated, and so that the
// evaluation is claimed exactly once.
//
// A [Registry] maps opaque session ids to records and evicts finished records
// after a retention window.
package session
