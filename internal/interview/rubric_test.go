package interview

import (
	"testing"

	"github.com/MrWong99/mockvox/internal/session"
)

func TestParseRubric(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		in         string
		wantAxes   [session.AxisCount]float64
		wantParsed int
		wantErr    bool
		wantTags   []string
		wantNotes  string
	}{
		{
			name:       "well formed",
			in:         `{"communication":8,"technical_depth":7,"problem_solving":6,"clarity":9,"confidence":5,"tags":["concise","needs depth"],"notes":"Good."}`,
			wantAxes:   [5]float64{8, 7, 6, 9, 5},
			wantParsed: 5,
			wantTags:   []string{"concise", "needs depth"},
			wantNotes:  "Good.",
		},
		{
			name:       "fenced with prose",
			in:         "Here you go:\n```json\n{\"communication\": 6.5, \"technical_depth\": 4, \"problem_solving\": 5, \"clarity\": 7, \"confidence\": 8}\n```",
			wantAxes:   [5]float64{6.5, 4, 5, 7, 8},
			wantParsed: 5,
			wantTags:   []string{},
		},
		{
			name:       "clamped out of range",
			in:         `{"communication":14,"technical_depth":-3,"problem_solving":10,"clarity":0,"confidence":11}`,
			wantAxes:   [5]float64{10, 0, 10, 0, 10},
			wantParsed: 5,
			wantTags:   []string{},
		},
		{
			name:       "partial with defaults",
			in:         `{"communication":9,"clarity":"seven","confidence":null}`,
			wantAxes:   [5]float64{9, 5, 5, 5, 5},
			wantParsed: 1,
			wantTags:   []string{},
		},
		{
			name:       "numeric strings and nested scores",
			in:         `{"scores":{"communication":"7","technicalDepth":"8/10","problem_solving":" 6 ","clarity":7,"confidence":"4.5"},"tags":"calm, structured"}`,
			wantAxes:   [5]float64{7, 8, 6, 7, 4.5},
			wantParsed: 5,
			wantTags:   []string{"calm", "structured"},
		},
		{
			name:       "not json",
			in:         "I cannot score this interview.",
			wantAxes:   [5]float64{5, 5, 5, 5, 5},
			wantParsed: 0,
			wantErr:    true,
			wantTags:   []string{},
		},
		{
			name:       "broken json",
			in:         `{"communication": 8, "clarity": }`,
			wantAxes:   [5]float64{5, 5, 5, 5, 5},
			wantErr:    true,
			wantTags:   []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r, parsed, err := ParseRubric(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if parsed != tt.wantParsed {
				t.Errorf("parsed = %d, want %d", parsed, tt.wantParsed)
			}
			if r.Axes() != tt.wantAxes {
				t.Errorf("axes = %v, want %v", r.Axes(), tt.wantAxes)
			}
			var sum float64
			for _, v := range tt.wantAxes {
				sum += v
			}
			if r.Total != sum {
				t.Errorf("Total = %v, want %v", r.Total, sum)
			}
			if len(r.Tags) != len(tt.wantTags) {
				t.Fatalf("Tags = %q, want %q", r.Tags, tt.wantTags)
			}
			for i := range r.Tags {
				if r.Tags[i] != tt.wantTags[i] {
					t.Errorf("Tags[%d] = %q, want %q", i, r.Tags[i], tt.wantTags[i])
				}
			}
			if r.Notes != tt.wantNotes {
				t.Errorf("Notes = %q, want %q", r.Notes, tt.wantNotes)
			}
		})
	}
}

func TestParseRubric_TotalAlwaysInRange(t *testing.T) {
	t.Parallel()

	inputs := []string{
		`{"communication":1e9,"technical_depth":1e9,"problem_solving":1e9,"clarity":1e9,"confidence":1e9}`,
		`{"communication":-1e9,"technical_depth":-1e9,"problem_solving":-1e9,"clarity":-1e9,"confidence":-1e9}`,
		`{}`,
		``,
	}
	for _, in := range inputs {
		r, _, _ := ParseRubric(in)
		if r.Total < 0 || r.Total > 50 {
			t.Errorf("ParseRubric(%q).Total = %v, want within [0,50]", in, r.Total)
		}
		for i, v := range r.Axes() {
			if v < 0 || v > 10 {
				t.Errorf("ParseRubric(%q) axis %d = %v, want within [0,10]", in, i, v)
			}
		}
	}
}

func TestDefaultRubric(t *testing.T) {
	t.Parallel()
	r := DefaultRubric()
	if r.Total != 25 {
		t.Errorf("Total = %v, want 25", r.Total)
	}
	if r.Tags == nil {
		t.Error("Tags = nil, want empty slice")
	}
}
