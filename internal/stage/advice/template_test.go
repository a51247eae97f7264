package advice

import "testing"

func TestTemplatePackThresholds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		score float64
		want  string
	}{
		{score: 90, want: summaryStable},
		{score: 85, want: summaryStable},
		{score: 84.9, want: summaryImprovable},
		{score: 70, want: summaryImprovable},
		{score: 60, want: summaryImprovable},
		{score: 59.9, want: summaryFoundation},
		{score: 40, want: summaryFoundation},
		{score: 0, want: summaryFoundation},
	}
	for _, tc := range cases {
		pack := templatePack(tc.score)
		if pack.Summary != tc.want {
			t.Fatalf("score %v: summary = %q, want %q", tc.score, pack.Summary, tc.want)
		}
		if len(pack.Advice) != 3 {
			t.Fatalf("score %v: advice len = %d, want 3", tc.score, len(pack.Advice))
		}
		if pack.Source != SourceTemplate {
			t.Fatalf("score %v: source = %q", tc.score, pack.Source)
		}
	}
}

func TestTemplatePackCopiesAdviceSlice(t *testing.T) {
	t.Parallel()

	pack := templatePack(50)
	pack.Advice[0] = "mutated"
	if templateAdvice[0] == "mutated" {
		t.Fatal("templatePack must not alias the shared template slice")
	}
}
