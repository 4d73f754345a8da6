package cmd

import (
	"fmt"
	"io"
)

// Disassemble assembles the file at path and writes the resulting bytecode
// listing to out, one "index: mnemonic operands" line per instruction.
func Disassemble(path string, out io.Writer) error {
	prog, err := assembleFile(path)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, prog.Disassemble())
	return err
}
