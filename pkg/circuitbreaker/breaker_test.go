package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	var transitions []gobreaker.State
	cfg := Config{
		Name:             "test",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 3,
		FailureRatio:     0.6,
		MinRequests:      100,
		OnStateChange: func(name string, state gobreaker.State) {
			if name != "test" {
				t.Errorf("state change for breaker %q", name)
			}
			transitions = append(transitions, state)
		},
	}
	b := New(cfg, nil)

	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		if b.IsOpen() {
			t.Fatalf("breaker open after %d failures, threshold is 3", i)
		}
		if _, err := b.Execute(func() (interface{}, error) { return nil, boom }); err == nil {
			t.Fatal("expected failure to propagate")
		}
	}

	if !b.IsOpen() {
		t.Fatal("breaker must open at the failure threshold")
	}
	if len(transitions) != 1 || transitions[0] != gobreaker.StateOpen {
		t.Errorf("transitions = %v, want single open", transitions)
	}
	if _, err := b.Execute(func() (interface{}, error) { return nil, nil }); err == nil {
		t.Error("open breaker must reject calls")
	}
}

func TestStateValue(t *testing.T) {
	if StateValue(gobreaker.StateClosed) != 0 {
		t.Error("closed must map to 0")
	}
	if StateValue(gobreaker.StateOpen) != 1 {
		t.Error("open must map to 1")
	}
	if StateValue(gobreaker.StateHalfOpen) != 2 {
		t.Error("half-open must map to 2")
	}
}
