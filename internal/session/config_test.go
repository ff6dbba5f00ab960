package session

import "testing"

func TestResolveConfig_Precedence(t *testing.T) {
	t.Parallel()

	d := BuiltinDefaults()
	prior := &Config{
		CandidateName: "Ada",
		Role:          "Backend Engineer",
		Level:         "senior",
		Language:      "de",
		Round:         "behavioral",
		MaxTurns:      4,
		Voice:         "nova",
		JobContext:    "payments team",
	}

	tests := []struct {
		name  string
		input Config
		prior *Config
		want  Config
	}{
		{
			name:  "all defaults",
			input: Config{},
			want:  d.Config,
		},
		{
			name:  "prior fills gaps",
			input: Config{Role: "SRE"},
			prior: prior,
			want: Config{
				CandidateName: "Ada", Role: "SRE", Level: "senior", Language: "de",
				Round: "behavioral", MaxTurns: 4, Voice: "nova", JobContext: "payments team",
			},
		},
		{
			name: "explicit beats prior",
			input: Config{
				CandidateName: "Grace", Role: "Staff Engineer", Level: "staff", Language: "en",
				Round: "system-design", MaxTurns: 2, Voice: "echo", JobContext: "infra",
			},
			prior: prior,
			want: Config{
				CandidateName: "Grace", Role: "Staff Engineer", Level: "staff", Language: "en",
				Round: "system-design", MaxTurns: 2, Voice: "echo", JobContext: "infra",
			},
		},
		{
			name:  "blank strings are unset",
			input: Config{CandidateName: "   ", Language: ""},
			want:  d.Config,
		},
		{
			name:  "values trimmed",
			input: Config{CandidateName: "  Lin  "},
			want: func() Config {
				c := d.Config
				c.CandidateName = "Lin"
				return c
			}(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ResolveConfig(tt.input, tt.prior, d); got != tt.want {
				t.Errorf("ResolveConfig() =\n  %+v\nwant\n  %+v", got, tt.want)
			}
		})
	}
}

func TestResolveConfig_MaxTurnsClamp(t *testing.T) {
	t.Parallel()

	d := BuiltinDefaults()
	d.MaxTurnsLimit = 8

	tests := []struct {
		name string
		in   int
		dflt int
		want int
	}{
		{"within range", 3, 5, 3},
		{"above limit", 50, 5, 8},
		{"negative falls back to default", -2, 5, 5},
		{"zero default clamps to one", 0, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dd := d
			dd.MaxTurns = tt.dflt
			if got := ResolveConfig(Config{MaxTurns: tt.in}, nil, dd).MaxTurns; got != tt.want {
				t.Errorf("MaxTurns = %d, want %d", got, tt.want)
			}
		})
	}
}
