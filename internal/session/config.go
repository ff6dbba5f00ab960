package session

import "strings"

// Config is the immutable per-interview configuration.
type Config struct {
	CandidateName string `json:"candidateName"`
	Role          string `json:"role"`
	Level         string `json:"level"`
	Language      string `json:"language"`
	Round         string `json:"round"`
	MaxTurns      int    `json:"maxTurns"`
	Voice         string `json:"voice"`
	JobContext    string `json:"jobContext"`
}

// Defaults is the table consulted when neither the start message nor a prior
// session supplies a field.
type Defaults struct {
	Config

	// MaxTurnsLimit is the upper clamp for MaxTurns. Values below 1 disable
	// the upper clamp.
	MaxTurnsLimit int
}

// BuiltinDefaults returns the default table used when the configuration file
// leaves the interview defaults empty.
func BuiltinDefaults() Defaults {
	return Defaults{
		Config: Config{
			CandidateName: "Candidate",
			Role:          "Software Engineer",
			Level:         "mid",
			Language:      "en",
			Round:         "technical",
			MaxTurns:      5,
			Voice:         "alloy",
			JobContext:    "",
		},
		MaxTurnsLimit: 20,
	}
}

// ResolveConfig computes the configuration of a new session. Every field is
// taken from input when set, else from prior when prior is non-nil and the
// field is set there, else from d. A string field is "set" when it is not
// blank; MaxTurns is set when positive. The resolved MaxTurns is clamped to
// [1, d.MaxTurnsLimit].
//
// ResolveConfig is total: it never fails and always returns a usable Config.
func ResolveConfig(input Config, prior *Config, d Defaults) Config {
	var p Config
	if prior != nil {
		p = *prior
	}

	out := Config{
		CandidateName: firstString(input.CandidateName, p.CandidateName, d.CandidateName),
		Role:          firstString(input.Role, p.Role, d.Role),
		Level:         firstString(input.Level, p.Level, d.Level),
		Language:      firstString(input.Language, p.Language, d.Language),
		Round:         firstString(input.Round, p.Round, d.Round),
		MaxTurns:      firstPositive(input.MaxTurns, p.MaxTurns, d.MaxTurns),
		Voice:         firstString(input.Voice, p.Voice, d.Voice),
		JobContext:    firstString(input.JobContext, p.JobContext, d.JobContext),
	}

	if out.MaxTurns < 1 {
		out.MaxTurns = 1
	}
	if d.MaxTurnsLimit > 0 && out.MaxTurns > d.MaxTurnsLimit {
		out.MaxTurns = d.MaxTurnsLimit
	}
	return out
}

func firstString(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
