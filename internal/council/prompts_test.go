package council

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadPromptsFallsBackWhenFilesMissing(t *testing.T) {
	set, err := LoadPrompts(t.TempDir())
	if err != nil {
		t.Fatalf("load prompts: %v", err)
	}
	anon, _ := fixedSet(t, 2)
	prompt, err := set.RankingPrompt("q", anon)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(prompt, "FINAL RANKING") {
		t.Fatalf("default ranking template missing marker instruction:\n%s", prompt)
	}
}

func TestLoadPromptsPrefersFilesOnDisk(t *testing.T) {
	dir := t.TempDir()
	custom := "Rank these for {{.Query}}:\n{{range .Responses}}{{.Label}}\n{{end}}End with RANKING:\n"
	if err := os.WriteFile(filepath.Join(dir, "ranking.tmpl"), []byte(custom), 0644); err != nil {
		t.Fatalf("write template: %v", err)
	}
	set, err := LoadPrompts(dir)
	if err != nil {
		t.Fatalf("load prompts: %v", err)
	}
	anon, _ := fixedSet(t, 2)
	prompt, err := set.RankingPrompt("pick one", anon)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.HasPrefix(prompt, "Rank these for pick one:") {
		t.Fatalf("on-disk template ignored:\n%s", prompt)
	}
	// The synthesis template was absent, so it should still be the default.
	synth, err := set.SynthesisPrompt("pick one", anon, []AggregateEntry{{Label: anon.Labels()[0], Score: 1, Ranked: 1}})
	if err != nil {
		t.Fatalf("render synthesis: %v", err)
	}
	if !strings.Contains(synth, "chairman") {
		t.Fatalf("default synthesis template missing:\n%s", synth)
	}
}

func TestLoadPromptsRejectsUnparsableTemplate(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "synthesis.tmpl"), []byte("{{.Broken"), 0644); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if _, err := LoadPrompts(dir); err == nil {
		t.Fatal("expected error for unparsable template")
	}
}

func TestSynthesisPromptRevealsOriginsInOrder(t *testing.T) {
	anon, labelOf := fixedSet(t, 3)
	aggregate := []AggregateEntry{
		{Label: labelOf["m3"], Score: 7, Ranked: 3},
		{Label: labelOf["m1"], Score: 5, Ranked: 3},
		{Label: labelOf["m2"], Score: 3, Ranked: 3},
	}
	prompt, err := DefaultPrompts().SynthesisPrompt("q", anon, aggregate)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	posM3 := strings.Index(prompt, "m3 (as ")
	posM1 := strings.Index(prompt, "m1 (as ")
	posM2 := strings.Index(prompt, "m2 (as ")
	if posM3 < 0 || posM1 < 0 || posM2 < 0 {
		t.Fatalf("origins not revealed:\n%s", prompt)
	}
	if !(posM3 < posM1 && posM1 < posM2) {
		t.Fatalf("entries out of consensus order:\n%s", prompt)
	}
}
