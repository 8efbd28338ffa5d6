package main

import (
	"context"
	"errors"

	"mvdown/internal/services"
)

const (
	exitFailed  = 1
	exitInvalid = 2
	exitClosed  = 3
	// 128 + SIGINT, as shells report an interrupted command.
	exitInterrupted = 130
)

// reportedError marks an error the command already showed to the user.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

func reported(err error) error {
	if err == nil {
		return nil
	}
	return &reportedError{err: err}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, context.Canceled) {
		return exitInterrupted
	}
	switch services.OutcomeFor(err) {
	case services.OutcomeInvalid:
		return exitInvalid
	case services.OutcomeClosed:
		return exitClosed
	default:
		return exitFailed
	}
}
