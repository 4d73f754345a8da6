package vm

import (
	"bytes"
	"strconv"
)

// Environment call ids dispatched by Ecall.
const (
	EcallPrintInt uint32 = iota
	EcallPrintStr
)

// Runtime is the fetch-decode-execute engine: it owns the Memory (stack,
// heap, and their reversible action log), the symbolic call stack used for
// error stack traces, and the output sink environment calls write to.
//
// A Runtime has exclusive access to all of this state for the duration of
// RunProgram: execution is single-threaded, no opcode suspends, and there is
// no timeout; non-termination is the program's responsibility.
type Runtime struct {
	mem       *Memory[uint32] // tag is the pc active when a mutation happened
	callstack []CallFrame
	out       Writer
}

// Writer is the environment-call output sink. Satisfied by any io.Writer;
// named separately so callers don't need to import io just to construct a
// Runtime.
type Writer interface {
	Write(p []byte) (n int, err error)
}

// NewRuntime returns a Runtime with empty memory, ready to run a Program.
// Every environment-call write goes to out.
func NewRuntime(out Writer) *Runtime {
	return &Runtime{mem: NewMemory[uint32](), out: out}
}

// Memory exposes the runtime's Memory, e.g. for a debugger to attach a
// SnapshotWalker or inspect live state between steps.
func (r *Runtime) Memory() *Memory[uint32] { return r.mem }

// Callstack returns the runtime's current symbolic call stack.
func (r *Runtime) Callstack() []CallFrame { return r.callstack }

// RunProgram enters function 0 of p and runs until it returns or faults. A
// fault is decorated with the call stack active at the point of failure
// exactly once, at this outermost boundary.
func (r *Runtime) RunProgram(p *Program) error {
	r.callstack = r.callstack[:0]

	entry := uint32(0)
	if len(p.Entries) > 0 {
		entry = p.Entries[0]
	}

	if err := r.runFunc(p, entry); err != nil {
		if verr, ok := err.(*Error); ok {
			return verr.withStackTrace(append([]CallFrame(nil), r.callstack...))
		}
		return err
	}
	return nil
}

// runFunc executes one function invocation starting at pc (which must be a
// Func header op) until it hits Ret, runs off the end of the program, or
// faults. It does not touch the call stack entry recorded by its caller's
// Call handling; it only restores the call stack to the height it had on
// entry, per Ret's contract.
func (r *Runtime) runFunc(p *Program, pc uint32) error {
	if pc >= uint32(len(p.Ops)) || p.Ops[pc].Kind != OpFunc {
		return newError(InvalidFunctionHeader, "instruction %d is not a function header", pc)
	}
	header := p.Ops[pc]
	fileID, nameID := uint32(header.Offset), uint32(header.Var)

	fp := len(r.mem.Stack.Vars)
	entryCallstackLen := len(r.callstack)
	pc++

	// Frame teardown is ordinary logged mutation: a SnapshotWalker replays a
	// return the same as any other step.
	finish := func() error {
		if err := r.mem.ShrinkStackVarsTo(fp, pc); err != nil {
			return err
		}
		r.callstack = r.callstack[:entryCallstackLen]
		return nil
	}

	for pc < uint32(len(p.Ops)) {
		op := p.Ops[pc]
		switch op.Kind {
		case OpFunc:
			pc++

		case OpStackAlloc:
			r.mem.AddStackVar(op.Len, pc)
			pc++

		case OpStackAllocPtr:
			ptr := r.mem.AddStackVar(op.Len, pc)
			PushMemStack(r.mem, ptr.ToWord(), pc)
			pc++

		case OpAlloc:
			ptr := r.mem.AddHeapVar(op.Len, pc)
			PushMemStack(r.mem, ptr.ToWord(), pc)
			pc++

		case OpMakeTempIntWord:
			PushMemStack(r.mem, uint64(op.Int), pc)
			pc++

		case OpLoadStr:
			if int(op.Len) >= len(p.Strings) {
				return newError(InvalidOffset, "string index %d out of range", op.Len)
			}
			s := p.Strings[op.Len]
			ptr := r.mem.AddHeapVar(uint32(len(s))+1, pc)
			nulTerminated := make([]byte, len(s)+1)
			copy(nulTerminated, s)
			if err := r.mem.WriteBytes(ptr, nulTerminated, pc); err != nil {
				return err
			}
			PushMemStack(r.mem, ptr.ToWord(), pc)
			pc++

		case OpGetLocalWord:
			ptr, err := r.mem.LocalPointer(fp, op.Var, uint32(op.Offset))
			if err != nil {
				return err
			}
			v, err := GetMemVar[uint64](r.mem, ptr)
			if err != nil {
				return err
			}
			PushMemStack(r.mem, v, pc)
			pc++

		case OpSetLocalWord:
			v, err := PopMemStack[uint64](r.mem, pc)
			if err != nil {
				return err
			}
			ptr, err := r.mem.LocalPointer(fp, op.Var, uint32(op.Offset))
			if err != nil {
				return err
			}
			if _, err := SetMemVar(r.mem, ptr, v, pc); err != nil {
				return err
			}
			pc++

		case OpGetWord:
			w, err := PopMemStack[uint64](r.mem, pc)
			if err != nil {
				return err
			}
			ptr := addSignedOffset(PointerFromWord(w), op.Offset)
			v, err := GetMemVar[uint64](r.mem, ptr)
			if err != nil {
				return err
			}
			PushMemStack(r.mem, v, pc)
			pc++

		case OpSetWord:
			w, err := PopMemStack[uint64](r.mem, pc)
			if err != nil {
				return err
			}
			ptr := addSignedOffset(PointerFromWord(w), op.Offset)
			v, err := PopMemStack[uint64](r.mem, pc)
			if err != nil {
				return err
			}
			if _, err := SetMemVar(r.mem, ptr, v, pc); err != nil {
				return err
			}
			pc++

		case OpRet:
			return finish()

		case OpAddCallstackDesc:
			r.callstack = append(r.callstack, op.Frame)
			pc++

		case OpRemoveCallstackDesc:
			if len(r.callstack) <= entryCallstackLen {
				return newError(CallstackEmpty, "RemoveCallstackDesc with no frame to pop")
			}
			r.callstack = r.callstack[:len(r.callstack)-1]
			pc++

		case OpCall:
			frame := CallFrame{File: fileID, Name: nameID, Line: op.Line}
			r.callstack = append(r.callstack, frame)
			if err := r.runFunc(p, op.Len); err != nil {
				// Do not pop: the frame stays so the outermost RunProgram
				// boundary can attach the full depth-d call stack.
				return err
			}
			if len(r.callstack) <= entryCallstackLen {
				return newError(CallstackEmpty, "Call returned with no frame to pop")
			}
			r.callstack = r.callstack[:len(r.callstack)-1]
			pc++

		case OpEcall:
			if err := r.execEcall(op.Len, pc); err != nil {
				return err
			}
			pc++

		default:
			return newError(InvalidFunctionHeader, "unrecognized opcode %d at instruction %d", op.Kind, pc)
		}
	}

	return finish()
}

// addSignedOffset returns ptr with delta added to its offset.
func addSignedOffset(ptr VarPointer, delta int32) VarPointer {
	return ptr.WithOffset(uint32(int64(ptr.Offset()) + int64(delta)))
}

// execEcall dispatches one environment call.
func (r *Runtime) execEcall(call uint32, pc uint32) error {
	switch call {
	case EcallPrintInt:
		v, err := PopMemStack[int64](r.mem, pc)
		if err != nil {
			return err
		}
		if _, err := r.out.Write([]byte(strconv.FormatInt(v, 10))); err != nil {
			return newError(WriteFailed, "write failed: %v", err)
		}
		return nil

	case EcallPrintStr:
		w, err := PopMemStack[uint64](r.mem, pc)
		if err != nil {
			return err
		}
		ptr := PointerFromWord(w)
		slice, err := r.mem.GetVarSlice(ptr)
		if err != nil {
			return err
		}
		nul := bytes.IndexByte(slice, 0)
		if nul < 0 {
			return newError(MissingNullTerminator, "string at %s has no NUL terminator", ptr)
		}
		if _, err := r.out.Write(slice[:nul]); err != nil {
			return newError(WriteFailed, "write failed: %v", err)
		}
		return nil

	default:
		return newError(InvalidEnvironmentCall, "unknown environment call id %d", call)
	}
}
