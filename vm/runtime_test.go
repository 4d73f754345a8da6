package vm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func runProgram(t *testing.T, p *Program) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rt := NewRuntime(&out)
	err := rt.RunProgram(p)
	return out.String(), err
}

// beginFunc mirrors what a real compiler emits at every function entry: the
// mandatory Func header, followed by an AddCallstackDesc so the function's
// own frame shows up in a stack trace taken while it (or a callee) is
// running. endFunc mirrors the matching teardown before Ret.
func beginFunc(b *ProgramBuilder, file, name string) uint32 {
	fileID := b.File(file)
	nameID := b.BeginFunc(file, name)
	b.Emit(AddCallstackDesc(CallFrame{File: fileID, Name: nameID, Line: 0}))
	return nameID
}

func endFunc(b *ProgramBuilder) {
	b.Emit(RemoveCallstackDesc())
	b.Emit(Ret())
}

// TestPrintLiteralString: a function that loads a string literal and prints
// it.
func TestPrintLiteralString(t *testing.T) {
	b := NewProgramBuilder()
	s := b.String("hello")
	beginFunc(b, "main.sbr", "main")
	b.Emit(LoadStr(s))
	b.Emit(Ecall(EcallPrintStr, 1))
	endFunc(b)
	p := b.Build()

	out, err := runProgram(t, p)
	require.NoError(t, err)
	require.Equal(t, "hello", out)
}

// TestCallAndPrintThroughLocal: main calls helper, which stores a loaded
// string into a local and prints it back out.
func TestCallAndPrintThroughLocal(t *testing.T) {
	b := NewProgramBuilder()
	s := b.String("hello")

	beginFunc(b, "main.sbr", "main")
	callAt := b.Emit(Op{}) // patched below, once helper's entry is known
	endFunc(b)

	helperIdx := beginFunc(b, "main.sbr", "helper")
	b.Emit(StackAlloc(8))
	b.Emit(LoadStr(s))
	b.Emit(SetLocalWord(0, 0))
	b.Emit(GetLocalWord(0, 0))
	b.Emit(Ecall(EcallPrintStr, 1))
	endFunc(b)

	p := b.Build()
	p.Ops[callAt] = Call(p.Entries[helperIdx], 1)

	out, err := runProgram(t, p)
	require.NoError(t, err)
	require.Equal(t, "hello", out)
}

// TestHeapStoreLoad: allocate a heap word through a local pointer, store 12
// into it, load it back and print it.
func TestHeapStoreLoad(t *testing.T) {
	b := NewProgramBuilder()
	beginFunc(b, "main.sbr", "main")
	b.Emit(StackAlloc(8))       // local 0: holds the heap pointer
	b.Emit(Alloc(8))            // push heap pointer
	b.Emit(SetLocalWord(0, 0))  // local0 = heap pointer
	b.Emit(MakeTempIntWord(12)) // push 12
	b.Emit(GetLocalWord(0, 0))  // push heap pointer
	b.Emit(SetWord(0))          // *ptr = 12
	b.Emit(GetLocalWord(0, 0))  // push heap pointer
	b.Emit(GetWord(0))          // push *ptr
	b.Emit(Ecall(EcallPrintInt, 1))
	endFunc(b)
	p := b.Build()

	out, err := runProgram(t, p)
	require.NoError(t, err)
	require.Equal(t, "12", out)
}

// TestNullDeref: treating 0 as a pointer and dereferencing it for PRINT_STR
// must fail with InvalidPointer and a stack trace that includes main.
func TestNullDeref(t *testing.T) {
	b := NewProgramBuilder()
	beginFunc(b, "main.sbr", "main")
	b.Emit(MakeTempIntWord(0))
	b.Emit(Ecall(EcallPrintStr, 1))
	endFunc(b)
	p := b.Build()

	_, err := runProgram(t, p)
	var verr *Error
	require.ErrorAs(t, err, &verr)
	require.Equal(t, InvalidPointer, verr.Kind)
	require.NotEmpty(t, verr.StackTrace)
	require.Equal(t, "main", p.Functions[verr.StackTrace[0].Name])
}

// TestMissingNullTerminator: a heap buffer whose every byte has been
// overwritten to something non-zero has no NUL terminator. The default
// zero-init does contain a NUL, so the test must clobber every byte first.
func TestMissingNullTerminator(t *testing.T) {
	b := NewProgramBuilder()
	beginFunc(b, "main.sbr", "main")
	b.Emit(StackAlloc(8)) // local 0: holds the heap pointer
	b.Emit(Alloc(8))
	b.Emit(SetLocalWord(0, 0))
	b.Emit(MakeTempIntWord(0x0101010101010101)) // every byte non-zero
	b.Emit(GetLocalWord(0, 0))
	b.Emit(SetWord(0))
	b.Emit(GetLocalWord(0, 0))
	b.Emit(Ecall(EcallPrintStr, 1))
	endFunc(b)
	p := b.Build()

	_, err := runProgram(t, p)
	var verr *Error
	require.ErrorAs(t, err, &verr)
	require.Equal(t, MissingNullTerminator, verr.Kind)
}

// TestFrameRestoration: after Ret, the stack var high-water mark and the
// call stack height return to what they were at entry.
func TestFrameRestoration(t *testing.T) {
	b := NewProgramBuilder()
	beginFunc(b, "main.sbr", "main")
	callAt := b.Emit(Op{})
	endFunc(b)

	helperIdx := beginFunc(b, "main.sbr", "helper")
	b.Emit(StackAlloc(8))
	b.Emit(StackAlloc(8))
	endFunc(b)

	p := b.Build()
	p.Ops[callAt] = Call(p.Entries[helperIdx], 1)

	var out bytes.Buffer
	rt := NewRuntime(&out)
	require.NoError(t, rt.RunProgram(p))
	require.Empty(t, rt.Memory().Stack.Vars)
	require.Empty(t, rt.Callstack())
}

// TestRunReversibility replays a whole execution's action log, including the
// frame teardown Ret performs, backward to the empty starting state and
// forward to the live final state.
func TestRunReversibility(t *testing.T) {
	b := NewProgramBuilder()
	s := b.String("hello")

	beginFunc(b, "main.sbr", "main")
	b.Emit(StackAlloc(8))
	callAt := b.Emit(Op{})
	endFunc(b)

	helperIdx := beginFunc(b, "main.sbr", "helper")
	b.Emit(StackAlloc(8))
	b.Emit(LoadStr(s))
	b.Emit(SetLocalWord(0, 0))
	b.Emit(GetLocalWord(0, 0))
	b.Emit(Ecall(EcallPrintStr, 1))
	endFunc(b)

	p := b.Build()
	p.Ops[callAt] = Call(p.Entries[helperIdx], 1)

	var out bytes.Buffer
	rt := NewRuntime(&out)
	require.NoError(t, rt.RunProgram(p))

	m := rt.Memory()

	bw := m.BackwardWalker()
	var start MemorySnapshot
	for {
		snap, ok := bw.Prev()
		start = snap
		if !ok {
			break
		}
	}
	diffSnapshots(t, MemorySnapshot{}, start)

	fw := m.ForwardWalker()
	var final MemorySnapshot
	for {
		snap, ok := fw.Next()
		final = snap
		if !ok {
			break
		}
	}
	diffSnapshots(t, MemorySnapshot{Stack: cloneVarBuffer(m.Stack), Heap: cloneVarBuffer(m.Heap)}, final)
}

// TestLoadStrNulTermination: LoadStr produces a heap variable of length
// len(s)+1 whose last byte is 0 and whose prefix equals s.
func TestLoadStrNulTermination(t *testing.T) {
	b := NewProgramBuilder()
	s := b.String("abc")
	beginFunc(b, "main.sbr", "main")
	b.Emit(StackAlloc(8))
	b.Emit(LoadStr(s))
	b.Emit(SetLocalWord(0, 0))
	endFunc(b)
	p := b.Build()

	rt := NewRuntime(&bytes.Buffer{})
	// runFunc executes main through its Ret; Ret tears down only the stack
	// frame, so the heap variable LoadStr created is still there to inspect.
	require.NoError(t, rt.runFunc(p, p.Entries[0]))

	require.Len(t, rt.Memory().Heap.Vars, 1)
	v := rt.Memory().Heap.Vars[0]
	require.Equal(t, uint32(4), v.Len)
	data := rt.Memory().Heap.Data[v.Idx : v.Idx+int(v.Len)]
	require.Equal(t, []byte("abc\x00"), data)
}
