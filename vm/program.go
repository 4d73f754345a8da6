package vm

import (
	"strconv"
	"strings"
)

// Program is an immutable image ready to execute: three string pools (source
// file names, string literals, function names) plus the flat instruction
// sequence. Nothing in Program is mutated once built; Runtime only reads it.
//
// The pools are slices into Program's own buffers rather than into any
// caller-owned memory, so a Program outlives whatever assembled it without
// pinning that assembler's storage alive.
type Program struct {
	Files     []string
	Strings   []string
	Functions []string
	Entries   []uint32 // Entries[i] is the pc where Functions[i] begins
	Ops       []Op
}

// EntryOf returns the pc where the named function begins, or false if no
// function by that name was interned.
func (p *Program) EntryOf(name string) (uint32, bool) {
	for i, n := range p.Functions {
		if n == name {
			return p.Entries[i], true
		}
	}
	return 0, false
}

// ProgramBuilder assembles a Program incrementally. Each pool is interned so
// repeated identical entries share one slot, matching how a real front end
// (string/name/file pools built once per compilation unit) would intern
// constants rather than duplicate them per use site.
type ProgramBuilder struct {
	files   []string
	fileIdx map[string]uint32
	strs    []string
	strIdx  map[string]uint32
	funcs   []string
	funcIdx map[string]uint32
	entries []uint32
	ops     []Op
}

// NewProgramBuilder returns an empty builder.
func NewProgramBuilder() *ProgramBuilder {
	return &ProgramBuilder{
		fileIdx: make(map[string]uint32),
		strIdx:  make(map[string]uint32),
		funcIdx: make(map[string]uint32),
	}
}

func intern(pool *[]string, idx map[string]uint32, s string) uint32 {
	if i, ok := idx[s]; ok {
		return i
	}
	i := uint32(len(*pool))
	*pool = append(*pool, s)
	idx[s] = i
	return i
}

// File interns a source file name and returns its pool index.
func (b *ProgramBuilder) File(name string) uint32 { return intern(&b.files, b.fileIdx, name) }

// String interns a string literal and returns its pool index.
func (b *ProgramBuilder) String(s string) uint32 { return intern(&b.strs, b.strIdx, s) }

// Func interns a function name and returns its pool index.
func (b *ProgramBuilder) Func(name string) uint32 { return intern(&b.funcs, b.funcIdx, name) }

// BeginFunc interns name and file, records the current instruction pointer
// as name's entry point, emits the function's header op, and returns name's
// pool index.
func (b *ProgramBuilder) BeginFunc(file, name string) uint32 {
	fileIdx := intern(&b.files, b.fileIdx, file)
	nameIdx := intern(&b.funcs, b.funcIdx, name)
	for len(b.entries) <= int(nameIdx) {
		b.entries = append(b.entries, 0)
	}
	b.entries[nameIdx] = b.Len()
	b.Emit(Func(fileIdx, nameIdx))
	return nameIdx
}

// Emit appends an already-constructed Op and returns its instruction index.
func (b *ProgramBuilder) Emit(op Op) uint32 {
	idx := uint32(len(b.ops))
	b.ops = append(b.ops, op)
	return idx
}

// Len reports how many instructions have been emitted so far, which is the
// pc the next emitted instruction will get (BeginFunc records it as a
// function's entry point).
func (b *ProgramBuilder) Len() uint32 { return uint32(len(b.ops)) }

// Build copies the builder's accumulated pools and instructions into a
// Program the builder no longer shares storage with, and resets the builder
// to empty.
func (b *ProgramBuilder) Build() *Program {
	p := &Program{
		Files:     append([]string(nil), b.files...),
		Strings:   append([]string(nil), b.strs...),
		Functions: append([]string(nil), b.funcs...),
		Entries:   append([]uint32(nil), b.entries...),
		Ops:       append([]Op(nil), b.ops...),
	}
	*b = *NewProgramBuilder()
	return p
}

// Disassemble renders every instruction as "index: mnemonic operands".
func (p *Program) Disassemble() string {
	var sb strings.Builder
	for i, op := range p.Ops {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(strconv.Itoa(i))
		sb.WriteString(": ")
		sb.WriteString(op.String())
	}
	return sb.String()
}
