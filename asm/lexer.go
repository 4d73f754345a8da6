// Package asm is a minimal textual assembler for the vm package's bytecode:
// a line-oriented format with one mnemonic per line, // comments, and no
// control-flow resolution beyond mapping a function name to its entry point
// once the whole program has been read.
package asm

import (
	"regexp"
	"strings"
)

var commentPattern = regexp.MustCompile(`//.*$`)

// sourceLine is one non-blank, comment-stripped line paired with its
// 1-based line number in the original source, so errors and
// AddCallstackDesc frames can point back at real source positions.
type sourceLine struct {
	number int
	text   string
}

// lex strips comments and blank lines.
func lex(src string) []sourceLine {
	var lines []sourceLine
	for i, raw := range strings.Split(src, "\n") {
		stripped := strings.TrimSpace(commentPattern.ReplaceAllString(raw, ""))
		if stripped == "" {
			continue
		}
		lines = append(lines, sourceLine{number: i + 1, text: stripped})
	}
	return lines
}

// fields splits a line on space characters (a tab does not separate fields),
// except that a double-quoted argument (a loadstr operand) is kept whole even
// if it contains spaces.
func fields(text string) []string {
	var out []string
	var cur strings.Builder
	inQuotes := false

	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}

	for _, r := range text {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			cur.WriteRune(r)
		case r == ' ' && !inQuotes:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}
