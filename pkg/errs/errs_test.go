package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestHalts(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{fmt.Errorf("pricing: %w", ErrConfiguration), true},
		{fmt.Errorf("spend 15.00 >= cap 15.00: %w", ErrBudgetExceeded), true},
		{fmt.Errorf("turn 3: %w", ErrTurnGeneration), false},
		{ErrReferee, false},
		{ErrLedgerWrite, false},
		{errors.New("boom"), false},
		{nil, false},
	}
	for _, c := range cases {
		if got := Halts(c.err); got != c.want {
			t.Errorf("Halts(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestExitCode(t *testing.T) {
	if ExitCode(nil) != 0 {
		t.Error("nil error should exit 0")
	}
	if ExitCode(fmt.Errorf("load: %w", ErrConfiguration)) != 2 {
		t.Error("configuration error should exit 2")
	}
	if ExitCode(errors.New("open db")) != 1 {
		t.Error("generic error should exit 1")
	}
}
