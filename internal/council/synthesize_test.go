package council

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/quorumworks/conclave/internal/backend"
)

func TestSynthesizeUsesChairmanAnswer(t *testing.T) {
	set, labelOf := fixedSet(t, 3)
	aggregate := []AggregateEntry{
		{Label: labelOf["m2"], Score: 9, Ranked: 3},
		{Label: labelOf["m1"], Score: 6, Ranked: 3},
		{Label: labelOf["m3"], Score: 3, Ranked: 3},
	}
	var captured string
	caller := backend.CallerFunc(func(_ context.Context, id, prompt string) (string, error) {
		if id != "m3" {
			t.Errorf("unexpected backend asked: %s", id)
		}
		captured = prompt
		return "the synthesized answer", nil
	})
	s := NewSynthesizer(NewDispatcher(caller, time.Second), DefaultPrompts())
	result, err := s.Synthesize(context.Background(), "q", set, aggregate, "m3")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if result.UsedFallback {
		t.Fatalf("chairman succeeded, no fallback expected: %+v", result)
	}
	if result.Answer != "the synthesized answer" || result.Backend != "m3" || result.Chairman != "m3" {
		t.Fatalf("unexpected result: %+v", result)
	}
	// The chairman sees origins revealed, in consensus order.
	for _, origin := range []string{"m1", "m2", "m3"} {
		if !strings.Contains(captured, origin) {
			t.Fatalf("synthesis prompt missing origin %s:\n%s", origin, captured)
		}
	}
	if strings.Index(captured, "second answer") > strings.Index(captured, "first answer") {
		t.Fatalf("entries not in aggregate order:\n%s", captured)
	}
}

func TestSynthesizeFallsBackToTopRankedResponse(t *testing.T) {
	set, labelOf := fixedSet(t, 3)
	aggregate := []AggregateEntry{
		{Label: labelOf["m2"], Score: 9, Ranked: 3},
		{Label: labelOf["m1"], Score: 6, Ranked: 3},
		{Label: labelOf["m3"], Score: 3, Ranked: 3},
	}
	caller := backend.CallerFunc(func(ctx context.Context, _, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	s := NewSynthesizer(NewDispatcher(caller, 15*time.Millisecond), DefaultPrompts())
	result, err := s.Synthesize(context.Background(), "q", set, aggregate, "m3")
	if err != nil {
		t.Fatalf("chairman failure must not fail the turn: %v", err)
	}
	if !result.UsedFallback {
		t.Fatalf("expected fallback, got %+v", result)
	}
	if result.Answer != "second answer" || result.Backend != "m2" {
		t.Fatalf("fallback should be m2's verbatim response, got %+v", result)
	}
	if result.Chairman != "m3" {
		t.Fatalf("chairman identity should be preserved, got %+v", result)
	}
	if result.Failure == nil || result.Failure.Kind != backend.KindTimeout {
		t.Fatalf("chairman failure should be recorded, got %+v", result.Failure)
	}
}

func TestSynthesizeRejectsEmptyAggregate(t *testing.T) {
	set, _ := fixedSet(t, 2)
	caller := backend.CallerFunc(func(context.Context, string, string) (string, error) {
		t.Error("no call expected with an empty aggregate")
		return "", nil
	})
	s := NewSynthesizer(NewDispatcher(caller, time.Second), DefaultPrompts())
	if _, err := s.Synthesize(context.Background(), "q", set, nil, "m1"); err == nil {
		t.Fatal("expected error for empty aggregate")
	}
}
