package grader

import (
	"context"
	"crypto/subtle"
)

// StaticGrader compares the submitted flag against the flag stored on the
// problem itself.
type StaticGrader struct{}

func NewStaticGrader() *StaticGrader {
	return &StaticGrader{}
}

func (g *StaticGrader) Grade(ctx context.Context, req Request) (Verdict, error) {
	if subtle.ConstantTimeCompare([]byte(req.Problem.Flag), []byte(req.Flag)) == 1 {
		return Verdict{Correct: true, Message: "Correct!"}, nil
	}
	return Verdict{Correct: false, Message: "Wrong flag"}, nil
}
