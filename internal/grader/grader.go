// Package grader judges submitted flags. Grading logic is registered under a
// driver name at startup and resolved through the problem's grader reference,
// "driver" or "driver:argument", instead of loading code by path at runtime.
package grader

import (
	"context"
	"fmt"
	"strings"
	"time"

	"flagforge/internal/models"

	"github.com/google/uuid"
)

type Verdict struct {
	Correct bool
	Message string
}

type Request struct {
	Problem *models.Problem
	TeamID  uuid.UUID
	Flag    string
	// Arg is the part of the grader reference after "driver:", if any.
	Arg string
}

type Grader interface {
	Grade(ctx context.Context, req Request) (Verdict, error)
}

// LoadError means the problem's grading logic could not be resolved. It is
// fatal to the submission and distinct from a wrong answer.
type LoadError struct {
	Ref string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("grader %q not available", e.Ref)
}

// ExecError means the grading logic was found but failed or timed out while
// running. The submission stays ungraded.
type ExecError struct {
	Ref string
	Err error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("grader %q failed: %v", e.Ref, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

type Registry struct {
	drivers map[string]Grader
	timeout time.Duration
}

func NewRegistry(timeout time.Duration) *Registry {
	return &Registry{
		drivers: make(map[string]Grader),
		timeout: timeout,
	}
}

func (r *Registry) Register(name string, g Grader) {
	r.drivers[name] = g
}

// Grade resolves the problem's grader reference and runs it against the flag.
// An empty flag is rejected outright without touching problem-specific logic.
// Drivers run under the registry timeout; expiry surfaces as an ExecError.
func (r *Registry) Grade(ctx context.Context, req Request) (Verdict, error) {
	if req.Flag == "" {
		return Verdict{Correct: false, Message: "Empty flag"}, nil
	}

	ref := req.Problem.Grader
	name, arg, _ := strings.Cut(ref, ":")
	driver, ok := r.drivers[name]
	if !ok {
		return Verdict{}, &LoadError{Ref: ref}
	}
	req.Arg = arg

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type outcome struct {
		verdict Verdict
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		verdict, err := driver.Grade(ctx, req)
		done <- outcome{verdict, err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return Verdict{}, out.err
		}
		return out.verdict, nil
	case <-ctx.Done():
		// The driver goroutine is abandoned, not killed. Drivers hold no
		// shared state and are expected to check ctx between steps; a late
		// verdict is dropped on the buffered channel.
		return Verdict{}, &ExecError{Ref: ref, Err: ctx.Err()}
	}
}
