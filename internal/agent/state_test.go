package agent

import (
	"testing"
	"time"
)

func TestNext(t *testing.T) {
	cfg := DefaultBackoff()
	cases := []struct {
		name    string
		from    time.Duration
		outcome PollOutcome
		want    time.Duration
	}{
		{"claimed resets", 40 * time.Second, PollClaimed, 15 * time.Second},
		{"empty resets", 22500 * time.Millisecond, PollEmpty, 15 * time.Second},
		{"server error grows", 15 * time.Second, PollServerError, 22500 * time.Millisecond},
		{"network error grows", 22500 * time.Millisecond, PollNetwork, 33750 * time.Millisecond},
		{"growth is capped", 50 * time.Second, PollServerError, 60 * time.Second},
		{"cap holds", 60 * time.Second, PollNetwork, 60 * time.Second},
		{"rejection keeps interval", 33750 * time.Millisecond, PollRejected, 33750 * time.Millisecond},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Next(State{Interval: tc.from}, tc.outcome, cfg)
			if got.Interval != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got.Interval)
			}
			if got.LastOutcome != tc.outcome {
				t.Fatalf("expected outcome %q, got %q", tc.outcome, got.LastOutcome)
			}
		})
	}
}

func TestNext_ReachesCapFromDefault(t *testing.T) {
	cfg := DefaultBackoff()
	s := InitialState(cfg)
	for i := 0; i < 10; i++ {
		s = Next(s, PollServerError, cfg)
	}
	if s.Interval != MaxPollInterval {
		t.Fatalf("expected cap %v, got %v", MaxPollInterval, s.Interval)
	}
	s = Next(s, PollEmpty, cfg)
	if s.Interval != DefaultPollInterval {
		t.Fatalf("expected reset to %v, got %v", DefaultPollInterval, s.Interval)
	}
}

func TestExtractKeywords(t *testing.T) {
	cases := map[string]string{
		"How do I deploy a Clarity smart contract?": "deploy clarity smart contract",
		"Can you help me with Kubernetes HPA?":      "kubernetes hpa",
		"what is it?":                               "what is it?",
		"  ok  ":                                    "ok",
		"Explain the x402 payment-flow":             "explain x402 paymentflow",
	}
	for in, want := range cases {
		if got := ExtractKeywords(in); got != want {
			t.Errorf("ExtractKeywords(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSplitInstalledContext(t *testing.T) {
	in := "[INSTALLED CONTEXT]\nSKILL: Vacuum (db)\nDESCRIPTION: tuning\n\n[USER REQUEST]\nhow to vacuum?"
	ctxText, req, ok := SplitInstalledContext(in)
	if !ok {
		t.Fatal("expected context block")
	}
	if ctxText != "SKILL: Vacuum (db)\nDESCRIPTION: tuning" {
		t.Fatalf("unexpected context %q", ctxText)
	}
	if req != "how to vacuum?" {
		t.Fatalf("unexpected request %q", req)
	}

	if _, req, ok := SplitInstalledContext("plain question"); ok || req != "plain question" {
		t.Fatalf("plain input: ok=%v req=%q", ok, req)
	}
}
