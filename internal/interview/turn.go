// Package interview generates the interviewer side of a mock interview.
//
// [ShouldContinue] is the turn controller. [Engine] wraps an [llm.Provider]
// and produces the persona, the greeting, follow-up questions, and the final
// evaluation. Every Engine method degrades to a fixed fallback when the model
// fails or answers with something unusable, so an interview always progresses.
package interview

// ShouldContinue reports whether another interviewer question should be
// generated after the candidate's latest answer.
//
// The greeting-triggered introduction consumes one slot of the maxTurns budget
// without an interviewer turn, so with maxTurns = 3 two follow-ups are asked
// and the third answer triggers evaluation. maxTurns values below 1 are
// treated as 1.
func ShouldContinue(turnsCompleted, maxTurns int) bool {
	if maxTurns < 1 {
		maxTurns = 1
	}
	return turnsCompleted < maxTurns-1
}
