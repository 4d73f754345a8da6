package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"golang.org/x/term"

	"saber/vm"
)

// debugSession runs a program once to build its full memory action log,
// then lets the REPL walk that log forward and backward, the same
// breakpoint-and-step shape as the original bytecode's debug mode but
// driven off a SnapshotWalker instead of a live pc.
type debugSession struct {
	prog        *vm.Program
	rt          *vm.Runtime
	runErr      error
	walker      *vm.SnapshotWalker[uint32]
	breakpoints map[uint32]struct{}
	divider     string
}

func newDebugSession(path string, programOut io.Writer) (*debugSession, error) {
	prog, err := assembleFile(path)
	if err != nil {
		return nil, err
	}

	rt := vm.NewRuntime(programOut)
	runErr := rt.RunProgram(prog)

	return &debugSession{
		prog:        prog,
		rt:          rt,
		runErr:      runErr,
		walker:      rt.Memory().ForwardWalker(),
		breakpoints: make(map[uint32]struct{}),
		divider:     strings.Repeat("-", 80),
	}, nil
}

// Debug runs the program at path to completion, capturing its memory
// history, then opens an interactive time-travel REPL over that history on
// in/out. Environment-call output from the run itself goes to programOut.
func Debug(path string, in io.Reader, out io.Writer, programOut io.Writer) error {
	sess, err := newDebugSession(path, programOut)
	if err != nil {
		return err
	}

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 20 {
			sess.divider = strings.Repeat("-", w)
		}
	}

	sess.repl(in, out)
	return nil
}

func (s *debugSession) repl(in io.Reader, out io.Writer) {
	fmt.Fprintln(out, s.divider)
	fmt.Fprintln(out, "saber time-travel debugger")
	fmt.Fprintln(out, "commands: n/next, p/prev, run, b <pc>, state, quit")
	if s.runErr != nil {
		fmt.Fprintf(out, "program faulted: %v\n", s.runErr)
	} else {
		fmt.Fprintln(out, "program ran to completion")
	}
	fmt.Fprintln(out, s.divider)

	reader := bufio.NewReader(in)
	for {
		fmt.Fprint(out, "\n(saber-debug) ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(strings.ToLower(line))

		switch {
		case line == "n" || line == "next":
			snap, ok := s.walker.Next()
			s.printStep(out, snap, ok)
		case line == "p" || line == "prev":
			snap, ok := s.walker.Prev()
			s.printStep(out, snap, ok)
		case line == "state":
			fmt.Fprintln(out, s.divider)
			spew.Fdump(out, s.walker.Snapshot())
		case line == "run" || line == "r":
			s.runToBreakpoint(out)
		case strings.HasPrefix(line, "b "):
			s.toggleBreakpoint(out, strings.TrimSpace(line[2:]))
		case line == "q" || line == "quit" || line == "exit":
			return
		case line == "":
			// ignore bare newlines, same as pressing enter to no-op
		default:
			fmt.Fprintln(out, "unrecognized command:", line)
		}
	}
}

func (s *debugSession) printStep(out io.Writer, snap vm.MemorySnapshot, moved bool) {
	if !moved {
		fmt.Fprintln(out, "(no more history in that direction)")
		return
	}
	tag, hasMore := s.walker.Tag()
	if hasMore {
		fmt.Fprintf(out, "stack vars=%d heap vars=%d (next action at pc %d)\n",
			len(snap.Stack.Vars), len(snap.Heap.Vars), tag)
	} else {
		fmt.Fprintf(out, "stack vars=%d heap vars=%d (end of history)\n",
			len(snap.Stack.Vars), len(snap.Heap.Vars))
	}
}

func (s *debugSession) runToBreakpoint(out io.Writer) {
	for {
		tag, ok := s.walker.Tag()
		if !ok {
			fmt.Fprintln(out, "reached end of history")
			return
		}
		if _, isBreak := s.breakpoints[tag]; isBreak {
			fmt.Fprintf(out, "hit breakpoint at pc %d\n", tag)
			return
		}
		if _, moved := s.walker.Next(); !moved {
			return
		}
	}
}

func (s *debugSession) toggleBreakpoint(out io.Writer, arg string) {
	pc, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		fmt.Fprintln(out, "bad breakpoint:", err)
		return
	}
	if _, ok := s.breakpoints[uint32(pc)]; ok {
		delete(s.breakpoints, uint32(pc))
		fmt.Fprintln(out, "removed breakpoint at", pc)
		return
	}
	s.breakpoints[uint32(pc)] = struct{}{}
	fmt.Fprintln(out, "set breakpoint at", pc)
}
