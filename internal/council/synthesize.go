package council

import (
	"context"
	"fmt"
)

// SynthesisResult is the stage-3 outcome: the final answer text, the backend
// that authored it, and whether the chairman path failed and the engine fell
// back to the top-ranked stage-1 response.
type SynthesisResult struct {
	Answer       string   `json:"answer"`
	Backend      string   `json:"backend"`
	Chairman     string   `json:"chairman"`
	UsedFallback bool     `json:"used_fallback"`
	Failure      *Failure `json:"failure,omitempty"`
}

// Synthesizer drives stage 3: one call to the chairman with the
// de-anonymized, consensus-ordered material.
type Synthesizer struct {
	dispatcher *Dispatcher
	prompts    *PromptSet
}

// NewSynthesizer wires a synthesizer to the dispatcher and prompt set.
func NewSynthesizer(dispatcher *Dispatcher, prompts *PromptSet) *Synthesizer {
	return &Synthesizer{dispatcher: dispatcher, prompts: prompts}
}

// Synthesize asks the chairman for the final answer. If the chairman call
// fails or times out the turn does not fail: the result falls back to the
// top-ranked stage-1 response verbatim, so the user always gets an answer
// when at least one backend succeeded anywhere in the pipeline.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, set *AnonymizedSet, aggregate []AggregateEntry, chairman string) (SynthesisResult, error) {
	if len(aggregate) == 0 {
		return SynthesisResult{}, fmt.Errorf("council: nothing to synthesize")
	}

	prompt, err := s.prompts.SynthesisPrompt(query, set, aggregate)
	if err != nil {
		return SynthesisResult{}, err
	}
	outcomes := s.dispatcher.Dispatch(ctx, []Request{{Backend: chairman, Prompt: prompt}})
	outcome := outcomes[chairman]
	if outcome.OK() {
		return SynthesisResult{Answer: outcome.Text, Backend: chairman, Chairman: chairman}, nil
	}

	top := aggregate[0]
	origin, err := set.Deanonymize(top.Label)
	if err != nil {
		return SynthesisResult{}, err
	}
	text, err := set.Text(top.Label)
	if err != nil {
		return SynthesisResult{}, err
	}
	return SynthesisResult{
		Answer:       text,
		Backend:      origin,
		Chairman:     chairman,
		UsedFallback: true,
		Failure:      outcome.Failure,
	}, nil
}
