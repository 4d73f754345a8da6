package vm

import "fmt"

// OpKind identifies which of the fixed opcode shapes an Op carries. Named
// the way the original bytecode's PseudoOp variants are named.
type OpKind uint8

const (
	OpFunc OpKind = iota
	OpStackAlloc
	OpStackAllocPtr
	OpAlloc
	OpMakeTempIntWord
	OpLoadStr
	OpGetLocalWord
	OpSetLocalWord
	OpGetWord
	OpSetWord
	OpRet
	OpAddCallstackDesc
	OpRemoveCallstackDesc
	OpCall
	OpEcall
)

// opKindNames and the reverse lookup it seeds are built once in init, so the
// mnemonic <-> opcode mapping stays in sync in both directions from a single
// source list.
var opKindNames = [...]string{
	OpFunc:                "func",
	OpStackAlloc:          "stackalloc",
	OpStackAllocPtr:       "stackallocptr",
	OpAlloc:               "alloc",
	OpMakeTempIntWord:     "maketempintword",
	OpLoadStr:             "loadstr",
	OpGetLocalWord:        "getlocalword",
	OpSetLocalWord:        "setlocalword",
	OpGetWord:             "getword",
	OpSetWord:             "setword",
	OpRet:                 "ret",
	OpAddCallstackDesc:    "addcallstackdesc",
	OpRemoveCallstackDesc: "removecallstackdesc",
	OpCall:                "call",
	OpEcall:               "ecall",
}

var opKindFromName map[string]OpKind

func init() {
	opKindFromName = make(map[string]OpKind, len(opKindNames))
	for k, name := range opKindNames {
		opKindFromName[name] = OpKind(k)
	}
}

func (k OpKind) String() string {
	if int(k) < len(opKindNames) {
		return opKindNames[k]
	}
	return fmt.Sprintf("OpKind(%d)", uint8(k))
}

// OpKindFromName looks up an opcode by its textual mnemonic, for the
// assembler front end.
func OpKindFromName(name string) (OpKind, bool) {
	k, ok := opKindFromName[name]
	return k, ok
}

// CallFrame is one symbolic entry in a call stack: the source file and
// function name active at a call site, plus the line the call was made
// from. Runtime.callstack is a []CallFrame; Error.StackTrace is a copy of it
// taken at the point of failure.
type CallFrame struct {
	File uint32 // index into Program.Files
	Name uint32 // index into Program.Functions
	Line uint32
}

// Op is a single decoded instruction: a flat struct carrying the union of
// every opcode's payload rather than an interface per opcode, so it is cheap
// to copy and trivial to store contiguously in a Program.
type Op struct {
	Kind OpKind

	// StackAlloc, StackAllocPtr, Alloc: byte length to allocate.
	// LoadStr: index into Program.Strings.
	// Call: entry pc of the callee's Func header.
	// Ecall: environment call id.
	Len uint32

	// Call, Ecall: source line of the call site.
	Line uint32

	// Func: index into Program.Functions naming the function beginning here.
	// GetLocalWord, SetLocalWord: target variable index (signed, per the
	// original opcode payload).
	Var int32

	// Func: index into Program.Files naming the file the function is defined in.
	// GetLocalWord, SetLocalWord: byte offset within Var.
	// GetWord, SetWord: signed byte offset added to a popped pointer.
	Offset int32

	// MakeTempIntWord: the immediate value pushed.
	Int int64

	// AddCallstackDesc: the frame to push.
	Frame CallFrame
}

// Func returns a function-header op: the mandatory first op of a function
// body, naming the file and function the entry belongs to. Executing it is a
// no-op; its only job is letting Runtime reject a jump into the middle of a
// function (InvalidFunctionHeader) and identify "whoami" for the CallFrame
// pushed by a subsequent Call.
func Func(file, name uint32) Op {
	return Op{Kind: OpFunc, Var: int32(name), Offset: int32(file)}
}

// StackAlloc returns a StackAlloc op.
func StackAlloc(length uint32) Op { return Op{Kind: OpStackAlloc, Len: length} }

// StackAllocPtr returns a StackAllocPtr op: like StackAlloc, but pushes a
// pointer to the new variable onto the value stack instead of nothing.
func StackAllocPtr(length uint32) Op { return Op{Kind: OpStackAllocPtr, Len: length} }

// Alloc returns an Alloc op: allocates on the heap and pushes a pointer.
func Alloc(length uint32) Op { return Op{Kind: OpAlloc, Len: length} }

// MakeTempIntWord returns a MakeTempIntWord op.
func MakeTempIntWord(k int64) Op { return Op{Kind: OpMakeTempIntWord, Int: k} }

// LoadStr returns a LoadStr op referencing Program.Strings[i].
func LoadStr(i uint32) Op { return Op{Kind: OpLoadStr, Len: i} }

// GetLocalWord returns a GetLocalWord op.
func GetLocalWord(v int32, offset uint32) Op {
	return Op{Kind: OpGetLocalWord, Var: v, Offset: int32(offset)}
}

// SetLocalWord returns a SetLocalWord op.
func SetLocalWord(v int32, offset uint32) Op {
	return Op{Kind: OpSetLocalWord, Var: v, Offset: int32(offset)}
}

// GetWord returns a GetWord op: pop a pointer, read the word at a signed
// offset from it.
func GetWord(offset int32) Op { return Op{Kind: OpGetWord, Offset: offset} }

// SetWord returns a SetWord op: pop a pointer, then a word, and write the
// word at a signed offset from the pointer.
func SetWord(offset int32) Op { return Op{Kind: OpSetWord, Offset: offset} }

// Ret returns a Ret op.
func Ret() Op { return Op{Kind: OpRet} }

// AddCallstackDesc returns an AddCallstackDesc op.
func AddCallstackDesc(frame CallFrame) Op { return Op{Kind: OpAddCallstackDesc, Frame: frame} }

// RemoveCallstackDesc returns a RemoveCallstackDesc op.
func RemoveCallstackDesc() Op { return Op{Kind: OpRemoveCallstackDesc} }

// Call returns a Call op.
func Call(fn, line uint32) Op { return Op{Kind: OpCall, Len: fn, Line: line} }

// Ecall returns an Ecall op.
func Ecall(call, line uint32) Op { return Op{Kind: OpEcall, Len: call, Line: line} }

// String renders an op for disassembly: the mnemonic plus its operands.
func (o Op) String() string {
	switch o.Kind {
	case OpRet, OpRemoveCallstackDesc:
		return o.Kind.String()
	case OpFunc:
		return fmt.Sprintf("%s file=%d name=%d", o.Kind, o.Offset, o.Var)
	case OpStackAlloc, OpStackAllocPtr, OpAlloc, OpLoadStr:
		return fmt.Sprintf("%s %d", o.Kind, o.Len)
	case OpMakeTempIntWord:
		return fmt.Sprintf("%s %d", o.Kind, o.Int)
	case OpGetLocalWord, OpSetLocalWord:
		return fmt.Sprintf("%s var=%d offset=%d", o.Kind, o.Var, o.Offset)
	case OpGetWord, OpSetWord:
		return fmt.Sprintf("%s %d", o.Kind, o.Offset)
	case OpAddCallstackDesc:
		return fmt.Sprintf("%s file=%d name=%d line=%d", o.Kind, o.Frame.File, o.Frame.Name, o.Frame.Line)
	case OpCall, OpEcall:
		return fmt.Sprintf("%s %d line=%d", o.Kind, o.Len, o.Line)
	default:
		return o.Kind.String()
	}
}
