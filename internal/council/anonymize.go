package council

import (
	"fmt"
	"math/rand"
	"sort"
)

// Response pairs a stage-1 success with its origin backend.
type Response struct {
	Backend string
	Text    string
}

// Candidate is one anonymized response as shown to rankers: a label from the
// configured alphabet plus the response text. The origin stays inside the
// engine.
type Candidate struct {
	Label   string
	Backend string
	Text    string
}

// AnonymizedSet holds one round's anonymized responses. Candidates are kept
// in label-alphabet order so the presentation order carries no information
// about backend identity or arrival order; the randomness lives entirely in
// which label each backend drew.
type AnonymizedSet struct {
	candidates []Candidate
	byLabel    map[string]int
	byBackend  map[string]string
	alphabet   []string
}

// Anonymize assigns each response a label drawn at random from the alphabet.
// The rng is turn-scoped so no two turns share a permutation; injecting a
// seeded source makes the permutation deterministic in tests.
func Anonymize(responses []Response, alphabet []string, rng *rand.Rand) (*AnonymizedSet, error) {
	if len(responses) == 0 {
		return nil, fmt.Errorf("council: nothing to anonymize")
	}
	if len(responses) > len(alphabet) {
		return nil, fmt.Errorf("council: %d responses exceed the %d-token label alphabet", len(responses), len(alphabet))
	}
	if rng == nil {
		return nil, fmt.Errorf("council: a turn-scoped random source is required")
	}

	shuffled := append([]string(nil), alphabet...)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	set := &AnonymizedSet{
		candidates: make([]Candidate, 0, len(responses)),
		byLabel:    make(map[string]int, len(responses)),
		byBackend:  make(map[string]string, len(responses)),
		alphabet:   append([]string(nil), alphabet...),
	}
	for i, resp := range responses {
		if resp.Backend == "" {
			return nil, fmt.Errorf("council: response %d has no backend id", i)
		}
		if _, dup := set.byBackend[resp.Backend]; dup {
			return nil, fmt.Errorf("council: duplicate response for backend %s", resp.Backend)
		}
		label := shuffled[i]
		set.candidates = append(set.candidates, Candidate{Label: label, Backend: resp.Backend, Text: resp.Text})
		set.byBackend[resp.Backend] = label
	}
	sort.Slice(set.candidates, func(i, j int) bool {
		return set.alphabetIndex(set.candidates[i].Label) < set.alphabetIndex(set.candidates[j].Label)
	})
	for i, cand := range set.candidates {
		set.byLabel[cand.Label] = i
	}
	return set, nil
}

// Candidates returns the anonymized responses in label-alphabet order.
func (s *AnonymizedSet) Candidates() []Candidate {
	return s.candidates
}

// Labels returns the assigned labels in alphabet order.
func (s *AnonymizedSet) Labels() []string {
	labels := make([]string, len(s.candidates))
	for i, cand := range s.candidates {
		labels[i] = cand.Label
	}
	return labels
}

// Len returns the number of anonymized responses.
func (s *AnonymizedSet) Len() int {
	return len(s.candidates)
}

// Backends returns the origin backend ids in candidate order.
func (s *AnonymizedSet) Backends() []string {
	ids := make([]string, len(s.candidates))
	for i, cand := range s.candidates {
		ids[i] = cand.Backend
	}
	return ids
}

// Deanonymize resolves a label back to its origin backend. An unknown label
// is an error: it means a parsing bug let a foreign token through.
func (s *AnonymizedSet) Deanonymize(label string) (string, error) {
	idx, ok := s.byLabel[label]
	if !ok {
		return "", fmt.Errorf("council: label %q is not part of this round", label)
	}
	return s.candidates[idx].Backend, nil
}

// Text returns the response text for a label.
func (s *AnonymizedSet) Text(label string) (string, error) {
	idx, ok := s.byLabel[label]
	if !ok {
		return "", fmt.Errorf("council: label %q is not part of this round", label)
	}
	return s.candidates[idx].Text, nil
}

// LabelFor returns the label assigned to a backend's own response, if any.
func (s *AnonymizedSet) LabelFor(backendID string) (string, bool) {
	label, ok := s.byBackend[backendID]
	return label, ok
}

// Assignments returns the label -> backend mapping for the audit trail.
func (s *AnonymizedSet) Assignments() map[string]string {
	out := make(map[string]string, len(s.candidates))
	for _, cand := range s.candidates {
		out[cand.Label] = cand.Backend
	}
	return out
}

func (s *AnonymizedSet) alphabetIndex(label string) int {
	for i, token := range s.alphabet {
		if token == label {
			return i
		}
	}
	return len(s.alphabet)
}
