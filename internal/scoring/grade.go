package scoring

// GradeBand is one step of the grade function: scores >= Min map to Grade.
type GradeBand struct {
	Grade string
	Min   float64
}

const GradeF = "F"

// Bands returns the graded bands from best to worst.
func (g GradeThresholds) Bands() []GradeBand {
	return []GradeBand{
		{"A+", g.APlus},
		{"A", g.A},
		{"A-", g.AMinus},
		{"B+", g.BPlus},
		{"B", g.B},
		{"B-", g.BMinus},
		{"C+", g.CPlus},
		{"C", g.C},
		{"C-", g.CMinus},
		{"D+", g.DPlus},
		{"D", g.D},
		{"D-", g.DMinus},
	}
}

// Grade maps a score to a letter grade. It is total: anything below the
// lowest band, including NaN, is an F.
func (g GradeThresholds) Grade(score float64) string {
	for _, b := range g.Bands() {
		if score >= b.Min {
			return b.Grade
		}
	}
	return GradeF
}

// Rank orders grades for comparison; higher is better. Unknown grades rank -1.
func (g GradeThresholds) Rank(grade string) int {
	if grade == GradeF {
		return 0
	}
	bands := g.Bands()
	for i, b := range bands {
		if b.Grade == grade {
			return len(bands) - i
		}
	}
	return -1
}

// GradeInfo is the display metadata for a grade.
type GradeInfo struct {
	Description string `json:"description"`
	Color       string `json:"color"`
}

var gradeInfo = map[string]GradeInfo{
	"A+": {"Excellent - Highly trustworthy content", "#059669"},
	"A":  {"Excellent - Very trustworthy", "#10b981"},
	"A-": {"Very Good - Trustworthy", "#34d399"},
	"B+": {"Good - Generally trustworthy", "#22c55e"},
	"B":  {"Good - Mostly reliable", "#84cc16"},
	"B-": {"Satisfactory - Some concerns", "#a3e635"},
	"C+": {"Fair - Multiple concerns", "#facc15"},
	"C":  {"Fair - Questionable reliability", "#fbbf24"},
	"C-": {"Poor - Significant concerns", "#fb923c"},
	"D+": {"Poor - Low credibility", "#f97316"},
	"D":  {"Very Poor - Not trustworthy", "#ef4444"},
	"D-": {"Very Poor - Unreliable", "#dc2626"},
	"F":  {"Failing - Highly unreliable", "#991b1b"},
}

var unknownGrade = GradeInfo{Description: "Unknown", Color: "#6b7280"}

// Info looks up the description and color for a grade.
func Info(grade string) GradeInfo {
	if info, ok := gradeInfo[grade]; ok {
		return info
	}
	return unknownGrade
}
