package session

// Rubric score bounds.
const (
	AxisMin      = 0.0
	AxisMax      = 10.0
	AxisMidpoint = 5.0
	AxisCount    = 5
)

// Rubric is the structured outcome of the final evaluation. Each axis lies in
// [AxisMin, AxisMax]; Total is their sum.
type Rubric struct {
	Communication  float64  `json:"communication"`
	TechnicalDepth float64  `json:"technical_depth"`
	ProblemSolving float64  `json:"problem_solving"`
	Clarity        float64  `json:"clarity"`
	Confidence     float64  `json:"confidence"`
	Tags           []string `json:"tags"`
	Notes          string   `json:"notes"`
	Total          float64  `json:"total"`
}

// Axes returns the five axis values in a fixed order.
func (r Rubric) Axes() [AxisCount]float64 {
	return [AxisCount]float64{r.Communication, r.TechnicalDepth, r.ProblemSolving, r.Clarity, r.Confidence}
}

// Evaluation is produced once per session.
type Evaluation struct {
	Rubric       Rubric  `json:"rubric"`
	SummaryText  string  `json:"summaryText"`
	OverallScore float64 `json:"overallScore"`
}
