// Package cmd holds the saber CLI's subcommand bodies, kept separate from
// main.go so the cobra wiring stays a thin dispatch layer.
package cmd

import (
	"fmt"
	"io"
	"os"

	"saber/asm"
	"saber/vm"
)

// Run assembles the file at path and executes it to completion, sending
// every environment-call write to out. A runtime fault comes back as a
// *vm.Error carrying the call stack active when it happened; formatting it
// with "%+v" (not just Error()) also prints the Go call site that raised it.
func Run(path string, out io.Writer) error {
	prog, err := assembleFile(path)
	if err != nil {
		return err
	}

	rt := vm.NewRuntime(out)
	return rt.RunProgram(prog)
}

func assembleFile(path string) (*vm.Program, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	prog, err := asm.Assemble(string(src))
	if err != nil {
		return nil, fmt.Errorf("assemble %s: %w", path, err)
	}
	return prog, nil
}
