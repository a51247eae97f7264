package advice

// Static fallback content: the guaranteed terminal of the advice pipeline.
// The summary wording is keyed to score thresholds; the thresholds are the
// contract, the wording is locale-specific.
const (
	summaryStable     = "stable posture"
	summaryImprovable = "room to improve"
	summaryFoundation = "needs foundational work"
)

var templateAdvice = []string{
	"Engage your core",
	"Relax your shoulders",
	"Ground through your heels",
}

// templatePack builds the static advice pack for a score. This path never
// fails.
func templatePack(score float64) Pack {
	summary := summaryFoundation
	switch {
	case score >= 85:
		summary = summaryStable
	case score >= 60:
		summary = summaryImprovable
	}
	return Pack{
		Advice:  append([]string(nil), templateAdvice...),
		Summary: summary,
		Source:  SourceTemplate,
	}
}
