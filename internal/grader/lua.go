package grader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Shopify/go-lua"
)

// LuaGrader runs grading scripts written in Lua. The grader reference names a
// script under the configured root, e.g. "lua:crypto100.lua", and the script
// must define
//
//	function grade(team, flag)
//	    return correct, message
//	end
//
// A fresh Lua state is created per call; states are not goroutine safe.
type LuaGrader struct {
	root string
}

func NewLuaGrader(root string) *LuaGrader {
	return &LuaGrader{root: root}
}

func (g *LuaGrader) Grade(ctx context.Context, req Request) (Verdict, error) {
	ref := req.Problem.Grader

	// Script references must stay inside the root.
	if !filepath.IsLocal(req.Arg) {
		return Verdict{}, &LoadError{Ref: ref}
	}
	path := filepath.Join(g.root, req.Arg)

	if _, err := os.Stat(path); err != nil {
		return Verdict{}, &LoadError{Ref: ref}
	}

	state := lua.NewState()
	lua.OpenLibraries(state)

	if err := lua.LoadFile(state, path, ""); err != nil {
		return Verdict{}, &ExecError{Ref: ref, Err: err}
	}
	if err := state.ProtectedCall(0, 0, 0); err != nil {
		return Verdict{}, &ExecError{Ref: ref, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return Verdict{}, &ExecError{Ref: ref, Err: err}
	}

	state.Global("grade")
	if !state.IsFunction(-1) {
		state.Pop(1)
		return Verdict{}, &ExecError{Ref: ref, Err: fmt.Errorf("script does not define grade()")}
	}

	state.PushString(req.TeamID.String())
	state.PushString(req.Flag)
	if err := state.ProtectedCall(2, 2, 0); err != nil {
		return Verdict{}, &ExecError{Ref: ref, Err: err}
	}

	correct := state.ToBoolean(-2)
	message, _ := state.ToString(-1)
	state.Pop(2)

	if message == "" {
		if correct {
			message = "Correct!"
		} else {
			message = "Wrong flag"
		}
	}
	return Verdict{Correct: correct, Message: message}, nil
}
