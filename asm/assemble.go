package asm

import (
	"fmt"
	"strconv"
	"strings"

	"saber/vm"
)

// ecallNames maps the environment-call mnemonics this assembler recognizes
// to the ids Runtime dispatches on.
var ecallNames = map[string]uint32{
	"printint": vm.EcallPrintInt,
	"printstr": vm.EcallPrintStr,
}

// pendingCall is a Call instruction whose target is resolved only after the
// whole file has been read; every call goes through it, whether its target is
// defined above or below it. Since there's no general jump in this
// instruction set, the only forward reference an assembly file can contain
// is "call a function defined further down", so one resolution pass after
// the whole file has been read is enough.
type pendingCall struct {
	opIndex uint32
	target  string
	line    int
}

// Assemble turns assembly text into a vm.Program. The format is:
//
//	.file "name.sbr"      // sets the file name attributed to subsequent funcs
//	.func name
//	  <mnemonic> <args...>
//	.endfunc
//
// One instruction per line; "//" starts a line comment. addcallstackdesc
// takes no operands; its file, function and line are taken from the
// enclosing .func and the source line it appears on, the way a real
// compiler front end would fill them in rather than have a human spell them
// out redundantly.
func Assemble(src string) (*vm.Program, error) {
	b := vm.NewProgramBuilder()
	lines := lex(src)

	currentFile := "main.sbr"
	inFunc := false
	funcName := ""
	var pending []pendingCall

	for _, ln := range lines {
		f := fields(ln.text)
		if len(f) == 0 {
			continue
		}
		head, args := f[0], f[1:]

		switch head {
		case ".file":
			name, err := directiveFileArg(ln.number, args)
			if err != nil {
				return nil, err
			}
			currentFile = name

		case ".func":
			if inFunc {
				return nil, errf(ln.number, "nested .func before matching .endfunc for %q", funcName)
			}
			if len(args) != 1 {
				return nil, errf(ln.number, ".func takes exactly one name")
			}
			funcName = args[0]
			b.BeginFunc(currentFile, funcName)
			inFunc = true

		case ".endfunc":
			if !inFunc {
				return nil, errf(ln.number, ".endfunc with no open .func")
			}
			inFunc = false

		default:
			if !inFunc {
				return nil, errf(ln.number, "instruction %q outside of any .func block", head)
			}
			op, call, err := assembleOp(b, currentFile, funcName, ln.number, head, args)
			if err != nil {
				return nil, err
			}
			idx := b.Emit(op)
			if call != nil {
				call.opIndex = idx
				pending = append(pending, *call)
			}
		}
	}
	if inFunc {
		return nil, errf(lines[len(lines)-1].number, "missing .endfunc for %q", funcName)
	}

	p := b.Build()
	for _, c := range pending {
		entry, ok := p.EntryOf(c.target)
		if !ok {
			return nil, errf(c.line, "call to undefined function %q", c.target)
		}
		op := p.Ops[c.opIndex]
		op.Len = entry
		p.Ops[c.opIndex] = op
	}
	return p, nil
}

func directiveFileArg(line int, args []string) (string, error) {
	if len(args) != 1 {
		return "", errf(line, ".file takes exactly one quoted name")
	}
	name, err := unquote(args[0])
	if err != nil {
		return "", errf(line, "%v", err)
	}
	return name, nil
}

// assembleOp parses one instruction line into an Op. The returned
// *pendingCall is non-nil only for OpCall, whose target isn't resolvable
// until the whole file has been read.
func assembleOp(b *vm.ProgramBuilder, file, fn string, line int, head string, args []string) (vm.Op, *pendingCall, error) {
	kind, ok := vm.OpKindFromName(head)
	if !ok {
		return vm.Op{}, nil, errf(line, "unknown mnemonic %q", head)
	}

	switch kind {
	case vm.OpStackAlloc, vm.OpStackAllocPtr, vm.OpAlloc:
		n, err := parseUints(line, args, 1)
		if err != nil {
			return vm.Op{}, nil, err
		}
		switch kind {
		case vm.OpStackAlloc:
			return vm.StackAlloc(n[0]), nil, nil
		case vm.OpStackAllocPtr:
			return vm.StackAllocPtr(n[0]), nil, nil
		default:
			return vm.Alloc(n[0]), nil, nil
		}

	case vm.OpMakeTempIntWord:
		if len(args) != 1 {
			return vm.Op{}, nil, errf(line, "maketempintword takes exactly one integer")
		}
		v, err := strconv.ParseInt(args[0], 0, 64)
		if err != nil {
			return vm.Op{}, nil, errf(line, "invalid integer %q: %v", args[0], err)
		}
		return vm.MakeTempIntWord(v), nil, nil

	case vm.OpLoadStr:
		if len(args) != 1 {
			return vm.Op{}, nil, errf(line, "loadstr takes exactly one quoted string")
		}
		s, err := unquote(args[0])
		if err != nil {
			return vm.Op{}, nil, errf(line, "%v", err)
		}
		return vm.LoadStr(b.String(s)), nil, nil

	case vm.OpGetLocalWord, vm.OpSetLocalWord:
		n, err := parseInts(line, args, 2)
		if err != nil {
			return vm.Op{}, nil, err
		}
		if kind == vm.OpGetLocalWord {
			return vm.GetLocalWord(n[0], uint32(n[1])), nil, nil
		}
		return vm.SetLocalWord(n[0], uint32(n[1])), nil, nil

	case vm.OpGetWord, vm.OpSetWord:
		n, err := parseInts(line, args, 1)
		if err != nil {
			return vm.Op{}, nil, err
		}
		if kind == vm.OpGetWord {
			return vm.GetWord(n[0]), nil, nil
		}
		return vm.SetWord(n[0]), nil, nil

	case vm.OpRet:
		if len(args) != 0 {
			return vm.Op{}, nil, errf(line, "ret takes no arguments")
		}
		return vm.Ret(), nil, nil

	case vm.OpAddCallstackDesc:
		if len(args) != 0 {
			return vm.Op{}, nil, errf(line, "addcallstackdesc takes no arguments; its frame comes from the enclosing .func and this line")
		}
		frame := vm.CallFrame{File: b.File(file), Name: b.Func(fn), Line: uint32(line)}
		return vm.AddCallstackDesc(frame), nil, nil

	case vm.OpRemoveCallstackDesc:
		if len(args) != 0 {
			return vm.Op{}, nil, errf(line, "removecallstackdesc takes no arguments")
		}
		return vm.RemoveCallstackDesc(), nil, nil

	case vm.OpCall:
		if len(args) != 1 {
			return vm.Op{}, nil, errf(line, "call takes exactly one function name")
		}
		return vm.Call(0, uint32(line)), &pendingCall{target: args[0], line: line}, nil

	case vm.OpEcall:
		if len(args) != 1 {
			return vm.Op{}, nil, errf(line, "ecall takes exactly one environment call name")
		}
		id, ok := ecallNames[args[0]]
		if !ok {
			return vm.Op{}, nil, errf(line, "unknown environment call %q", args[0])
		}
		return vm.Ecall(id, uint32(line)), nil, nil

	case vm.OpFunc:
		return vm.Op{}, nil, errf(line, "func is emitted implicitly by .func and cannot be written directly")

	default:
		return vm.Op{}, nil, errf(line, "mnemonic %q is not assemblable directly", head)
	}
}

func parseUints(line int, args []string, n int) ([]uint32, error) {
	if len(args) != n {
		return nil, errf(line, "expected %d argument(s), got %d", n, len(args))
	}
	out := make([]uint32, n)
	for i, a := range args {
		v, err := strconv.ParseUint(a, 0, 32)
		if err != nil {
			return nil, errf(line, "invalid unsigned integer %q: %v", a, err)
		}
		out[i] = uint32(v)
	}
	return out, nil
}

func parseInts(line int, args []string, n int) ([]int32, error) {
	if len(args) != n {
		return nil, errf(line, "expected %d argument(s), got %d", n, len(args))
	}
	out := make([]int32, n)
	for i, a := range args {
		v, err := strconv.ParseInt(a, 0, 32)
		if err != nil {
			return nil, errf(line, "invalid integer %q: %v", a, err)
		}
		out[i] = int32(v)
	}
	return out, nil
}

func unquote(s string) (string, error) {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return "", fmt.Errorf("expected a quoted string, got %q", s)
	}
	unescaped := strings.ReplaceAll(s[1:len(s)-1], `\n`, "\n")
	unescaped = strings.ReplaceAll(unescaped, `\"`, `"`)
	return unescaped, nil
}
