package council

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/quorumworks/conclave/internal/config"
)

// PromptSet holds the ranking and synthesis templates. The templates are
// deployment data: LoadPrompts reads them from the project's prompts
// directory, falling back to the built-in defaults for any missing file.
type PromptSet struct {
	ranking   *template.Template
	synthesis *template.Template
}

type rankingPromptData struct {
	Query     string
	Responses []Candidate
}

type synthesisPromptData struct {
	Query   string
	Entries []synthesisEntry
}

type synthesisEntry struct {
	Backend string
	Label   string
	Text    string
	Score   int
	Ranked  int
}

// DefaultPrompts returns the built-in template set.
func DefaultPrompts() *PromptSet {
	set, err := newPromptSet(config.DefaultRankingTemplate, config.DefaultSynthesisTemplate)
	if err != nil {
		panic(fmt.Sprintf("council: built-in templates are invalid: %v", err))
	}
	return set
}

// LoadPrompts reads ranking.tmpl and synthesis.tmpl from dir. Missing files
// fall back to the defaults; unparsable files are errors.
func LoadPrompts(dir string) (*PromptSet, error) {
	ranking, err := readTemplateFile(filepath.Join(dir, "ranking.tmpl"), config.DefaultRankingTemplate)
	if err != nil {
		return nil, err
	}
	synthesis, err := readTemplateFile(filepath.Join(dir, "synthesis.tmpl"), config.DefaultSynthesisTemplate)
	if err != nil {
		return nil, err
	}
	return newPromptSet(ranking, synthesis)
}

func newPromptSet(ranking, synthesis string) (*PromptSet, error) {
	rankingTmpl, err := template.New("ranking").Parse(ranking)
	if err != nil {
		return nil, fmt.Errorf("council: parse ranking template: %w", err)
	}
	synthesisTmpl, err := template.New("synthesis").Parse(synthesis)
	if err != nil {
		return nil, fmt.Errorf("council: parse synthesis template: %w", err)
	}
	return &PromptSet{ranking: rankingTmpl, synthesis: synthesisTmpl}, nil
}

func readTemplateFile(path, fallback string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fallback, nil
		}
		return "", fmt.Errorf("council: read %s: %w", path, err)
	}
	return string(data), nil
}

// RankingPrompt renders the stage-2 prompt for one ranker. The candidate
// texts carry no origin information.
func (p *PromptSet) RankingPrompt(query string, set *AnonymizedSet) (string, error) {
	data := rankingPromptData{Query: query, Responses: set.Candidates()}
	var sb strings.Builder
	if err := p.ranking.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("council: render ranking prompt: %w", err)
	}
	return sb.String(), nil
}

// SynthesisPrompt renders the stage-3 prompt for the chairman, with origins
// revealed and entries in aggregate order.
func (p *PromptSet) SynthesisPrompt(query string, set *AnonymizedSet, aggregate []AggregateEntry) (string, error) {
	entries := make([]synthesisEntry, 0, len(aggregate))
	for _, entry := range aggregate {
		origin, err := set.Deanonymize(entry.Label)
		if err != nil {
			return "", err
		}
		text, err := set.Text(entry.Label)
		if err != nil {
			return "", err
		}
		entries = append(entries, synthesisEntry{
			Backend: origin,
			Label:   entry.Label,
			Text:    text,
			Score:   entry.Score,
			Ranked:  entry.Ranked,
		})
	}
	data := synthesisPromptData{Query: query, Entries: entries}
	var sb strings.Builder
	if err := p.synthesis.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("council: render synthesis prompt: %w", err)
	}
	return sb.String(), nil
}
