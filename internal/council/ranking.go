package council

import (
	"context"

	"github.com/quorumworks/conclave/internal/backend"
)

// RankedReply records one ranker's stage-2 contribution: the raw text it
// returned, the labels parsed from it, and any failure. A reply whose call
// succeeded but yielded zero recognizable labels carries a parse failure;
// the stage continues with the remaining rankers either way.
type RankedReply struct {
	Raw     string   `json:"raw,omitempty"`
	Ranking []string `json:"ranking,omitempty"`
	Failure *Failure `json:"failure,omitempty"`
}

// Usable reports whether the reply contributes a ranking to aggregation.
func (r RankedReply) Usable() bool {
	return r.Failure == nil && len(r.Ranking) > 0
}

// RankingCollector drives stage 2: it asks every backend that contributed a
// stage-1 response to rank the anonymized set, then parses each free-text
// reply into an ordered label list.
type RankingCollector struct {
	dispatcher *Dispatcher
	prompts    *PromptSet
}

// NewRankingCollector wires a collector to the dispatcher and prompt set.
func NewRankingCollector(dispatcher *Dispatcher, prompts *PromptSet) *RankingCollector {
	return &RankingCollector{dispatcher: dispatcher, prompts: prompts}
}

// Collect fans ranking requests out to every origin backend in the set. Only
// backends that succeeded in stage 1 are asked, and each receives the full
// set including its own response, so it can verify its own inclusion.
func (rc *RankingCollector) Collect(ctx context.Context, query string, set *AnonymizedSet) (map[string]RankedReply, error) {
	prompt, err := rc.prompts.RankingPrompt(query, set)
	if err != nil {
		return nil, err
	}

	rankers := set.Backends()
	requests := make([]Request, len(rankers))
	for i, id := range rankers {
		requests[i] = Request{Backend: id, Prompt: prompt}
	}
	outcomes := rc.dispatcher.Dispatch(ctx, requests)

	labels := set.Labels()
	replies := make(map[string]RankedReply, len(rankers))
	for _, id := range rankers {
		outcome := outcomes[id]
		if !outcome.OK() {
			replies[id] = RankedReply{Failure: outcome.Failure}
			continue
		}
		ranking := ParseRanking(outcome.Text, labels)
		reply := RankedReply{Raw: outcome.Text, Ranking: ranking}
		if len(ranking) == 0 {
			reply.Failure = &Failure{Kind: backend.KindParseFailure, Detail: "no recognizable ranking labels"}
		}
		replies[id] = reply
	}
	return replies, nil
}
