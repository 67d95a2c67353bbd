package council

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quorumworks/conclave/internal/backend"
	"github.com/quorumworks/conclave/internal/config"
	"github.com/quorumworks/conclave/internal/logbook"
)

// Stage tracks a turn's progress through the three-stage protocol.
type Stage string

const (
	StagePending       Stage = "pending"
	StageStage1Running Stage = "stage1-running"
	StageStage1Done    Stage = "stage1-done"
	StageStage2Running Stage = "stage2-running"
	StageStage2Done    Stage = "stage2-done"
	StageStage3Running Stage = "stage3-running"
	StageCompleted     Stage = "completed"
	StageFailed        Stage = "failed"
)

// Status is a turn's terminal disposition.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Turn is one full deliberation cycle for a single query, including the
// audit trail: who answered, how the anonymized responses were ranked, and
// why the final answer looks the way it does. The engine is the sole writer
// of Stage and Status; once a turn is terminal it is never mutated again.
type Turn struct {
	ID        string                 `json:"id"`
	Query     string                 `json:"query"`
	CreatedAt time.Time              `json:"created_at"`
	Stage     Stage                  `json:"stage"`
	Status    Status                 `json:"status,omitempty"`
	Stage1    map[string]Outcome     `json:"stage1,omitempty"`
	Labels    map[string]string      `json:"labels,omitempty"`
	Stage2    map[string]RankedReply `json:"stage2,omitempty"`
	Aggregate []AggregateEntry       `json:"aggregate,omitempty"`
	Stage3    *SynthesisResult       `json:"stage3,omitempty"`
}

// Answer returns the final answer text, or empty for a failed turn.
func (t *Turn) Answer() string {
	if t == nil || t.Stage3 == nil {
		return ""
	}
	return t.Stage3.Answer
}

// Engine sequences the three-stage deliberation protocol. Stages are
// strictly sequential: stage 2 starts only after every stage-1 outcome has
// resolved, and stage 3 only after stage 2 has fully resolved. No stage is
// retried; retry policy belongs below the dispatcher boundary.
type Engine struct {
	council  []string
	chairman string
	alphabet []string
	policy   config.SelfRankingPolicy

	dispatcher  *Dispatcher
	collector   *RankingCollector
	synthesizer *Synthesizer
	logbook     *logbook.Logbook

	clock   func() time.Time
	newID   func() string
	newRand func() *rand.Rand
}

// EngineOption customizes engine construction.
type EngineOption func(*Engine)

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) EngineOption {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithTurnIDs overrides turn id generation.
func WithTurnIDs(newID func() string) EngineOption {
	return func(e *Engine) {
		if newID != nil {
			e.newID = newID
		}
	}
}

// WithRandSource overrides the per-turn random source factory so tests can
// assert exact label permutations.
func WithRandSource(newRand func() *rand.Rand) EngineOption {
	return func(e *Engine) {
		if newRand != nil {
			e.newRand = newRand
		}
	}
}

// WithLogbook records stage transitions and degradations to a logbook.
func WithLogbook(lb *logbook.Logbook) EngineOption {
	return func(e *Engine) {
		e.logbook = lb
	}
}

// WithPrompts overrides the prompt set loaded from the project directory.
func WithPrompts(prompts *PromptSet) EngineOption {
	return func(e *Engine) {
		if prompts != nil {
			e.collector = NewRankingCollector(e.dispatcher, prompts)
			e.synthesizer = NewSynthesizer(e.dispatcher, prompts)
		}
	}
}

// NewEngine wires the deliberation engine from project configuration and a
// model caller.
func NewEngine(cfg *config.Config, caller backend.Caller, opts ...EngineOption) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("council: config is required")
	}
	if caller == nil {
		return nil, fmt.Errorf("council: a model caller is required")
	}
	council := cfg.CouncilIDs()
	if len(council) == 0 {
		return nil, fmt.Errorf("council: no council members configured")
	}
	if len(cfg.LabelAlphabet()) < len(council) {
		return nil, fmt.Errorf("council: label alphabet is smaller than the council")
	}

	prompts, err := LoadPrompts(cfg.PromptsDir())
	if err != nil {
		return nil, err
	}
	dispatcher := NewDispatcher(caller, cfg.DefaultTimeout(), WithTimeouts(cfg.Timeouts()))
	engine := &Engine{
		council:     council,
		chairman:    cfg.Chairman(),
		alphabet:    cfg.LabelAlphabet(),
		policy:      cfg.SelfRanking(),
		dispatcher:  dispatcher,
		collector:   NewRankingCollector(dispatcher, prompts),
		synthesizer: NewSynthesizer(dispatcher, prompts),
		clock:       time.Now,
		newID:       uuid.NewString,
		newRand: func() *rand.Rand {
			return rand.New(rand.NewSource(time.Now().UnixNano()))
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(engine)
		}
	}
	return engine, nil
}

// RunTurn executes one full deliberation turn. Failed backends degrade the
// turn rather than aborting it; the turn itself fails only when stage 1
// yields zero successes. The returned error reports engine misuse or broken
// templates, never individual backend failures.
func (e *Engine) RunTurn(ctx context.Context, query string) (*Turn, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("council: query is empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	turn := &Turn{
		ID:        e.newID(),
		Query:     query,
		CreatedAt: e.clock(),
		Stage:     StagePending,
	}
	e.logf(logbook.LevelInfo, "turn %s: dispatching query to %d council members", turn.ID, len(e.council))

	// Stage 1: independent answers.
	turn.Stage = StageStage1Running
	requests := make([]Request, len(e.council))
	for i, id := range e.council {
		requests[i] = Request{Backend: id, Prompt: query}
	}
	turn.Stage1 = e.dispatcher.Dispatch(ctx, requests)
	turn.Stage = StageStage1Done

	successes := make([]Response, 0, len(e.council))
	for _, id := range e.council {
		outcome := turn.Stage1[id]
		if outcome.OK() {
			successes = append(successes, Response{Backend: id, Text: outcome.Text})
		} else {
			e.logf(logbook.LevelWarn, "turn %s: %s failed stage 1: %s", turn.ID, id, outcome.Failure.Kind)
		}
	}
	if len(successes) == 0 {
		turn.Stage = StageFailed
		turn.Status = StatusFailed
		e.logf(logbook.LevelError, "turn %s: every council member failed, turn abandoned", turn.ID)
		return turn, nil
	}

	set, err := Anonymize(successes, e.alphabet, e.newRand())
	if err != nil {
		turn.Stage = StageFailed
		turn.Status = StatusFailed
		return turn, err
	}
	turn.Labels = set.Assignments()

	// Stage 2: anonymized cross-ranking by the stage-1 survivors.
	turn.Stage = StageStage2Running
	replies, err := e.collector.Collect(ctx, query, set)
	if err != nil {
		turn.Stage = StageFailed
		turn.Status = StatusFailed
		return turn, err
	}
	turn.Stage2 = replies
	turn.Stage = StageStage2Done

	usable := 0
	for _, reply := range replies {
		if reply.Usable() {
			usable++
		}
	}
	if usable < len(replies) {
		e.logf(logbook.LevelWarn, "turn %s: aggregating on %d of %d rankings", turn.ID, usable, len(replies))
	}

	opts := AggregateOptions{}
	if e.policy == config.SelfRankingDiscounted {
		opts.DiscountSelf = true
		opts.SelfLabels = make(map[string]string, set.Len())
		for _, id := range set.Backends() {
			if label, ok := set.LabelFor(id); ok {
				opts.SelfLabels[id] = label
			}
		}
	}
	turn.Aggregate = Aggregate(set, replies, opts)

	// Stage 3: chairman synthesis with fallback.
	turn.Stage = StageStage3Running
	result, err := e.synthesizer.Synthesize(ctx, query, set, turn.Aggregate, e.chairman)
	if err != nil {
		turn.Stage = StageFailed
		turn.Status = StatusFailed
		return turn, err
	}
	turn.Stage3 = &result
	turn.Stage = StageCompleted
	turn.Status = StatusCompleted
	if result.UsedFallback {
		e.logf(logbook.LevelWarn, "turn %s: chairman %s failed, answered with top-ranked response from %s", turn.ID, result.Chairman, result.Backend)
	} else {
		e.logf(logbook.LevelInfo, "turn %s: completed, answer synthesized by %s", turn.ID, result.Chairman)
	}
	return turn, nil
}

func (e *Engine) logf(level logbook.Level, format string, args ...any) {
	if e.logbook == nil {
		return
	}
	switch level {
	case logbook.LevelWarn:
		e.logbook.Warn(format, args...)
	case logbook.LevelError:
		e.logbook.Error(format, args...)
	default:
		e.logbook.Info(format, args...)
	}
}
