package council

import "sort"

// AggregateEntry is one label's consensus position: the summed rank-derived
// score and how many usable rankings actually contained the label. Ranked is
// informational only; it never affects ordering.
type AggregateEntry struct {
	Label  string `json:"label"`
	Score  int    `json:"score"`
	Ranked int    `json:"ranked"`
}

// AggregateOptions tunes aggregation. SelfLabels maps each ranker to the
// label of its own response; when DiscountSelf is set, a ranker's vote for
// its own label is stripped from its ballot before scoring (and draws no
// omission penalty), so self-preference contributes nothing.
type AggregateOptions struct {
	DiscountSelf bool
	SelfLabels   map[string]string
}

// Aggregate combines the parsed rankings into one consensus order.
//
// Scoring per ballot: a label at 0-based position p among n candidates earns
// n-p points, so first place earns n and an explicit last place earns 1. A
// label a ballot omitted earns 0 from that ballot, one less than the lowest
// explicitly ranked score, so omission is always penalized relative to being
// ranked last. Unusable replies (call or parse failures) contribute nothing.
//
// Every label of the set appears in the result exactly once. Ordering is by
// total score descending; ties break by the set's label-alphabet order,
// which keeps the aggregate reproducible from the raw rankings alone.
func Aggregate(set *AnonymizedSet, replies map[string]RankedReply, opts AggregateOptions) []AggregateEntry {
	n := set.Len()
	scores := make(map[string]int, n)
	counts := make(map[string]int, n)

	// Iterate rankers in candidate order for determinism; map iteration
	// order must not leak into anything observable.
	for _, ranker := range set.Backends() {
		reply, ok := replies[ranker]
		if !ok || !reply.Usable() {
			continue
		}
		ballot := reply.Ranking
		if opts.DiscountSelf {
			if own, ok := opts.SelfLabels[ranker]; ok {
				ballot = withoutLabel(ballot, own)
			}
		}
		for pos, label := range ballot {
			if _, known := set.byLabel[label]; !known {
				continue
			}
			scores[label] += n - pos
			counts[label]++
		}
	}

	entries := make([]AggregateEntry, 0, n)
	for _, cand := range set.Candidates() {
		entries = append(entries, AggregateEntry{
			Label:  cand.Label,
			Score:  scores[cand.Label],
			Ranked: counts[cand.Label],
		})
	}
	// Candidates() is already in alphabet order, so a stable sort by score
	// yields the documented tie-break for free.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	return entries
}

func withoutLabel(ballot []string, label string) []string {
	out := make([]string, 0, len(ballot))
	for _, l := range ballot {
		if l != label {
			out = append(out, l)
		}
	}
	return out
}
