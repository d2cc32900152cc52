package main

import (
	"errors"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/cellsolve/types"
)

func TestExitErrHandler_NilError(t *testing.T) {
	// Should not panic or exit on nil error
	exitErrHandler(nil, nil)
}

func TestExitErrHandler_WrappedExitCoder(t *testing.T) {
	// Test that wrapped errors still extract the exit code
	wrapped := errors.Join(errors.New("context"), cli.Exit("inner error", 42))

	var exitCoder cli.ExitCoder
	if !errors.As(wrapped, &exitCoder) {
		t.Fatal("wrapped error should still match cli.ExitCoder")
	}

	if exitCoder.ExitCode() != 42 {
		t.Errorf("exit code = %d, want 42", exitCoder.ExitCode())
	}
}

func TestExitErrHandler_RegularError(t *testing.T) {
	// Regular errors should result in exit code 1 (tested via behavior)
	err := errors.New("regular error")

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		t.Fatal("regular error should not be cli.ExitCoder")
	}
}

// TestExitErrHandler_PreservesResultCodes verifies that every solve result,
// including the negative ones, passes through cli.Exit unchanged.
func TestExitErrHandler_PreservesResultCodes(t *testing.T) {
	results := []types.Result{
		types.ResultLogFileError,
		types.ResultUserCancelled,
		types.ResultOptimal,
		types.ResultErrorOccurred,
		types.ResultStoppedIter,
		types.ResultStoppedTime,
		types.ResultInfeasible,
		types.ResultStoppedIterInfeasible,
		types.ResultStoppedTimeInfeasible,
	}

	for _, r := range results {
		t.Run(r.String(), func(t *testing.T) {
			err := cli.Exit("", int(r))

			var exitCoder cli.ExitCoder
			if !errors.As(err, &exitCoder) {
				t.Fatalf("cli.Exit should return ExitCoder")
			}

			if exitCoder.ExitCode() != int(r) {
				t.Errorf("ExitCode() = %d, want %d", exitCoder.ExitCode(), int(r))
			}
		})
	}
}

// TestExitErrHandler_MessageSuppression verifies empty messages don't print.
func TestExitErrHandler_MessageSuppression(t *testing.T) {
	// cli.Exit("", N) with empty message should not print anything meaningful
	err := cli.Exit("", -3)
	msg := err.Error()

	if msg != "" && msg != "exit status -3" {
		t.Errorf("Expected empty or 'exit status -3', got %q", msg)
	}
}
