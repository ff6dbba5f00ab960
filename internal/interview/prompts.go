package interview

import (
	"fmt"
	"strings"

	"github.com/MrWong99/mockvox/internal/session"
)

// DefaultFallbackPersona is used when persona generation fails and no other
// fallback was configured.
const DefaultFallbackPersona = "You are a friendly, professional interviewer. " +
	"Speak clearly, keep questions concise, ask one question at a time, " +
	"and build on what the candidate has already said."

const personaPrompt = `You design interviewer personas for spoken mock interviews.

Write a short style directive (three to five sentences) for an interviewer who will run a %s round for a %s %s position.
Describe tone, pacing, and what the interviewer listens for. Address the interviewer as "you".
Do not include a greeting, a name, or any questions. Respond in plain text, no markdown.`

const greetingPrompt = `%s

You are opening a spoken %s interview for a %s %s role.
Greet %s warmly in one or two sentences, then ask them to introduce themselves and their background.
Your words will be spoken aloud: no lists, no markdown, no stage directions.
Respond only in the language with code %q.`

const questionPrompt = `%s

You are conducting a spoken %s interview for a %s %s role with %s.
This is follow-up question %d of %d.
Read the transcript so far and ask exactly one next question that builds on the candidate's most recent answer.
Keep it under forty words. Your words will be spoken aloud: no lists, no markdown, no preamble.
Respond only in the language with code %q.`

const rubricPrompt = `You are an expert interview assessor. Score the candidate in the transcript of a %s interview for a %s %s role.

Score each axis from 0 to 10:
- communication
- technical_depth
- problem_solving
- clarity
- confidence

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{
  "communication": <0-10>,
  "technical_depth": <0-10>,
  "problem_solving": <0-10>,
  "clarity": <0-10>,
  "confidence": <0-10>,
  "tags": ["<short strength or weakness>", "..."],
  "notes": "<two or three sentences of feedback>"
}`

const summaryPrompt = `You are closing a spoken %s interview for a %s %s role with %s.
Write a short spoken wrap-up (four sentences at most): thank the candidate, name one strength and one area to improve based on the transcript, and say the interview is over.
Your words will be spoken aloud: no lists, no markdown.
Respond only in the language with code %q.`

// jobContextSection renders free-text job context, or nothing when empty.
func jobContextSection(cfg session.Config) string {
	jc := strings.TrimSpace(cfg.JobContext)
	if jc == "" {
		return ""
	}
	return "\n\nJob context provided by the candidate:\n" + jc
}

func buildPersonaPrompt(cfg session.Config) string {
	return fmt.Sprintf(personaPrompt, cfg.Round, cfg.Level, cfg.Role) + jobContextSection(cfg)
}

func buildGreetingPrompt(cfg session.Config, persona string) string {
	return fmt.Sprintf(greetingPrompt, persona, cfg.Round, cfg.Level, cfg.Role, cfg.CandidateName, cfg.Language) +
		jobContextSection(cfg)
}

func buildQuestionPrompt(cfg session.Config, persona string, turn int) string {
	return fmt.Sprintf(questionPrompt, persona, cfg.Round, cfg.Level, cfg.Role, cfg.CandidateName,
		turn, max(cfg.MaxTurns-1, 1), cfg.Language) + jobContextSection(cfg)
}

func buildRubricPrompt(cfg session.Config) string {
	return fmt.Sprintf(rubricPrompt, cfg.Round, cfg.Level, cfg.Role) + jobContextSection(cfg)
}

func buildSummaryPrompt(cfg session.Config) string {
	return fmt.Sprintf(summaryPrompt, cfg.Round, cfg.Level, cfg.Role, cfg.CandidateName, cfg.Language)
}

// formatTranscript renders the transcript as "Interviewer:" / "Candidate:" lines.
func formatTranscript(transcript []session.Utterance) string {
	var sb strings.Builder
	for _, u := range transcript {
		switch u.Role {
		case session.RoleCandidate:
			sb.WriteString("Candidate: ")
		default:
			sb.WriteString("Interviewer: ")
		}
		sb.WriteString(strings.TrimSpace(u.Text))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// ── Fallback texts ───────────────────────────────────────────────────────────

func fallbackGreeting(cfg session.Config) string {
	return fmt.Sprintf("Hello %s, and welcome to your %s interview for the %s position. "+
		"To get started, please introduce yourself and tell me a little about your background.",
		cfg.CandidateName, cfg.Round, cfg.Role)
}

var fallbackQuestions = []string{
	"Thank you. Can you walk me through a recent project you are proud of and your role in it?",
	"What was the hardest technical problem you faced there, and how did you approach it?",
	"If you had to do that again, what would you change and why?",
	"How do you make sure the quality of your work holds up under time pressure?",
	"Tell me about a disagreement with a teammate and how you resolved it.",
	"What are you hoping to learn or improve in your next role?",
}

// fallbackQuestion returns a generic follow-up for the given 1-based turn.
func fallbackQuestion(turn int) string {
	if turn < 1 {
		turn = 1
	}
	return fallbackQuestions[(turn-1)%len(fallbackQuestions)]
}

func fallbackSummary(cfg session.Config) string {
	return fmt.Sprintf("Thank you for your time today, %s. That concludes the interview. "+
		"Your written feedback and scores are now available.", cfg.CandidateName)
}
