package vm

// actionKind discriminates the reversible memory-action log entries a Memory
// appends on every mutation. historical byte ranges all index into the
// ever-growing Memory.historicalData buffer.
type actionKind int

const (
	actionSetValue actionKind = iota
	actionPushStack
	actionPopStack
	actionPopStackVar
	actionAllocStackVar
	actionAllocHeapVar
)

// memoryAction is one append-only log entry. Only the fields relevant to its
// kind are populated; one flat struct rather than an interface per kind,
// since every kind here is small and fixed-shape.
type memoryAction[Tag any] struct {
	kind actionKind
	tag  Tag

	// actionSetValue
	ptr                                              VarPointer
	valueStart, valueEndOverwriteStart, overwriteEnd int

	// actionPushStack / actionPopStack
	rangeStart, rangeEnd int

	// actionPopStackVar
	varStart, varEndStackStart, stackEnd int

	// actionAllocStackVar / actionAllocHeapVar
	allocLen uint32
}

// Memory combines the stack and heap VarBuffers with the reversible action
// log that lets a SnapshotWalker replay every mutation forward or backward.
// Tag is caller-supplied context recorded with every action; Runtime tags
// each action with the pc active when the mutation happened, so a debugger
// can map any log step back to the instruction that caused it.
type Memory[Tag any] struct {
	Stack VarBuffer
	Heap  VarBuffer

	historicalData []byte
	history        []memoryAction[Tag]
}

// NewMemory returns an empty Memory.
func NewMemory[Tag any]() *Memory[Tag] {
	return &Memory[Tag]{}
}

func (m *Memory[Tag]) pushHistory(a memoryAction[Tag]) {
	m.history = append(m.history, a)
}

func (m *Memory[Tag]) bufferFor(ptr VarPointer) *VarBuffer {
	if ptr.IsStack() {
		return &m.Stack
	}
	return &m.Heap
}

// GetVarSlice returns the tail of ptr's variable, from ptr's offset to the
// variable's end, used by PRINT_STR to scan for a NUL terminator.
func (m *Memory[Tag]) GetVarSlice(ptr VarPointer) ([]byte, error) {
	buf := m.bufferFor(ptr)
	if ptr.IsNull() {
		return nil, errInvalidPointer(ptr)
	}
	v, ok := buf.variable(ptr)
	if !ok {
		return nil, errInvalidPointer(ptr)
	}
	if ptr.Offset() >= v.Len {
		return nil, errInvalidOffset(v, ptr)
	}
	return buf.Data[v.Idx+int(ptr.Offset()) : v.Idx+int(v.Len)], nil
}

// GetSlice returns exactly length bytes starting at ptr, tag-dispatched to
// the correct region.
func (m *Memory[Tag]) GetSlice(ptr VarPointer, length uint32) ([]byte, error) {
	buf := m.bufferFor(ptr)
	start, end, err := buf.GetVarRange(ptr, length)
	if err != nil {
		return nil, err
	}
	return buf.Data[start:end], nil
}

// GetMemVar reads sizeof(T) bytes at ptr, tag-dispatched to the correct region.
func GetMemVar[T Word, Tag any](m *Memory[Tag], ptr VarPointer) (T, error) {
	if ptr.IsStack() {
		return GetVar[T](&m.Stack, ptr)
	}
	return GetVar[T](&m.Heap, ptr)
}

// SetMemVar writes t at ptr, tag-dispatched, records a reversible SetValue
// action, and returns the value it overwrote.
func SetMemVar[T Word, Tag any](m *Memory[Tag], ptr VarPointer, t T, tag Tag) (T, error) {
	valueStart := len(m.historicalData)
	m.historicalData = appendWord(m.historicalData, t)

	var prev T
	var err error
	if ptr.IsStack() {
		prev, err = Set[T](&m.Stack, ptr, t)
	} else {
		prev, err = Set[T](&m.Heap, ptr, t)
	}
	if err != nil {
		m.historicalData = m.historicalData[:valueStart]
		return prev, err
	}

	valueEndOverwriteStart := len(m.historicalData)
	m.historicalData = appendWord(m.historicalData, prev)
	overwriteEnd := len(m.historicalData)

	m.pushHistory(memoryAction[Tag]{
		kind:                   actionSetValue,
		tag:                    tag,
		ptr:                    ptr,
		valueStart:             valueStart,
		valueEndOverwriteStart: valueEndOverwriteStart,
		overwriteEnd:           overwriteEnd,
	})
	return prev, nil
}

func appendWord[T Word](dst []byte, t T) []byte {
	buf := make([]byte, wordSize[T]())
	encodeWord(buf, t)
	return append(dst, buf...)
}

// AddStackVar allocates a len-byte stack variable and returns a pointer to
// its first byte.
func (m *Memory[Tag]) AddStackVar(length uint32, tag Tag) VarPointer {
	idx := m.Stack.AddVar(length)
	m.pushHistory(memoryAction[Tag]{kind: actionAllocStackVar, tag: tag, allocLen: length})
	return NewStackPointer(idx, 0)
}

// AddHeapVar allocates a len-byte heap variable and returns a pointer to its
// first byte.
func (m *Memory[Tag]) AddHeapVar(length uint32, tag Tag) VarPointer {
	idx := m.Heap.AddVar(length)
	m.pushHistory(memoryAction[Tag]{kind: actionAllocHeapVar, tag: tag, allocLen: length})
	return NewHeapPointer(idx, 0)
}

// WriteBytes bounds-checks and writes an arbitrary-length byte span at ptr,
// tag-dispatched, recording a reversible SetValue action.
func (m *Memory[Tag]) WriteBytes(ptr VarPointer, bytes []byte, tag Tag) error {
	buf := m.bufferFor(ptr)
	start, end, err := buf.GetVarRange(ptr, uint32(len(bytes)))
	if err != nil {
		return err
	}

	valueStart := len(m.historicalData)
	m.historicalData = append(m.historicalData, bytes...)
	valueEndOverwriteStart := len(m.historicalData)
	m.historicalData = append(m.historicalData, buf.Data[start:end]...)
	overwriteEnd := len(m.historicalData)

	copy(buf.Data[start:end], bytes)
	m.pushHistory(memoryAction[Tag]{
		kind:                   actionSetValue,
		tag:                    tag,
		ptr:                    ptr,
		valueStart:             valueStart,
		valueEndOverwriteStart: valueEndOverwriteStart,
		overwriteEnd:           overwriteEnd,
	})
	return nil
}

// PopStackVar pops the most recently pushed stack variable (LIFO), recording
// a reversible PopStackVar action that preserves both the variable's bytes
// and any unframed bytes that trailed it.
func (m *Memory[Tag]) PopStackVar(tag Tag) (Var, error) {
	n := len(m.Stack.Vars)
	if n == 0 {
		return Var{}, newError(InvalidPointer, "tried to pop a variable from an empty stack")
	}
	v := m.Stack.Vars[n-1]

	varStart := len(m.historicalData)
	varEndStackStart := varStart + int(v.Len)
	m.historicalData = append(m.historicalData, m.Stack.Data[v.Idx:]...)
	stackEnd := len(m.historicalData)

	m.Stack.Vars = m.Stack.Vars[:n-1]
	m.Stack.Data = m.Stack.Data[:v.Idx]

	m.pushHistory(memoryAction[Tag]{
		kind:             actionPopStackVar,
		tag:              tag,
		varStart:         varStart,
		varEndStackStart: varEndStackStart,
		stackEnd:         stackEnd,
	})
	return v, nil
}

// ShrinkStackVarsTo tears the stack down to n variables the way Ret leaves a
// frame: pop each variable above the boundary (with its trailing unframed
// bytes), then pop whatever unframed bytes still sit above the highest
// remaining variable. Every step is recorded, so a SnapshotWalker can replay
// a function return like any other mutation.
func (m *Memory[Tag]) ShrinkStackVarsTo(n int, tag Tag) error {
	for len(m.Stack.Vars) > n {
		if _, err := m.PopStackVar(tag); err != nil {
			return err
		}
	}
	if residue := len(m.Stack.Data) - m.topVarUpper(); residue > 0 {
		return m.PopBytes(uint32(residue), tag)
	}
	return nil
}

// PushMemStack appends sizeof(T) bytes of v to the stack's unframed region.
func PushMemStack[T Word, Tag any](m *Memory[Tag], v T, tag Tag) {
	from := make([]byte, wordSize[T]())
	encodeWord(from, v)
	m.PushStackBytes(from, tag)
}

// PushStackBytes appends arbitrary bytes to the stack's unframed region.
func (m *Memory[Tag]) PushStackBytes(from []byte, tag Tag) {
	valueStart := len(m.historicalData)
	m.historicalData = append(m.historicalData, from...)
	valueEnd := len(m.historicalData)

	m.Stack.Data = append(m.Stack.Data, from...)
	m.pushHistory(memoryAction[Tag]{kind: actionPushStack, tag: tag, rangeStart: valueStart, rangeEnd: valueEnd})
}

// topVarUpper returns the upper bound of the topmost stack variable, or 0 if
// there are none: the boundary a typed pop must never cross.
func (m *Memory[Tag]) topVarUpper() int {
	if n := len(m.Stack.Vars); n > 0 {
		return m.Stack.Vars[n-1].Upper()
	}
	return 0
}

// PopBytes removes the top length unframed bytes from the stack.
func (m *Memory[Tag]) PopBytes(length uint32, tag Tag) error {
	if len(m.Stack.Data) < int(length) {
		return newError(StackTooShort,
			"tried to pop %d bytes from stack when stack is only %d bytes long", length, len(m.Stack.Data))
	}
	if len(m.Stack.Data)-m.topVarUpper() < int(length) {
		return newError(StackPopInvalidatesVariable, "popping from the stack would invalidate a variable")
	}

	upper := len(m.Stack.Data)
	lower := upper - int(length)
	from := m.Stack.Data[lower:upper]

	valueStart := len(m.historicalData)
	m.historicalData = append(m.historicalData, from...)
	valueEnd := len(m.historicalData)

	m.Stack.Data = m.Stack.Data[:lower]
	m.pushHistory(memoryAction[Tag]{kind: actionPopStack, tag: tag, rangeStart: valueStart, rangeEnd: valueEnd})
	return nil
}

// PopMemStack removes and returns the top sizeof(T) unframed bytes from the
// stack, interpreted as T.
func PopMemStack[T Word, Tag any](m *Memory[Tag], tag Tag) (T, error) {
	var zero T
	length := wordSize[T]()
	if len(m.Stack.Data) < int(length) {
		return zero, newError(StackTooShort,
			"tried to pop %d bytes from stack when stack is only %d bytes long", length, len(m.Stack.Data))
	}
	if len(m.Stack.Data)-m.topVarUpper() < int(length) {
		return zero, newError(StackPopInvalidatesVariable, "popping from the stack would invalidate a variable")
	}

	upper := len(m.Stack.Data)
	lower := upper - int(length)
	from := m.Stack.Data[lower:upper]

	valueStart := len(m.historicalData)
	m.historicalData = append(m.historicalData, from...)
	valueEnd := len(m.historicalData)

	out := decodeWord[T](from)
	m.Stack.Data = m.Stack.Data[:lower]
	m.pushHistory(memoryAction[Tag]{kind: actionPopStack, tag: tag, rangeStart: valueStart, rangeEnd: valueEnd})
	return out, nil
}

// PopKeepBytes removes the pop bytes immediately below the top keep bytes,
// shifting the kept bytes down and shrinking the stack by pop bytes total.
func (m *Memory[Tag]) PopKeepBytes(keep, pop uint32, tag Tag) error {
	length := keep + pop
	if uint32(len(m.Stack.Data)) < length {
		return newError(StackTooShort,
			"tried to pop %d bytes from stack when stack is only %d bytes long", length, len(m.Stack.Data))
	}
	if len(m.Stack.Data)-m.topVarUpper() < int(length) {
		return newError(StackPopInvalidatesVariable, "popping from the stack would invalidate a variable")
	}

	keepStart := len(m.Stack.Data) - int(keep)
	popStart := keepStart - int(pop)

	popValueStart := len(m.historicalData)
	m.historicalData = append(m.historicalData, m.Stack.Data[popStart:]...)
	popValueEnd := len(m.historicalData)
	m.historicalData = append(m.historicalData, m.Stack.Data[keepStart:]...)
	pushValueEnd := len(m.historicalData)

	copy(m.Stack.Data[popStart:], m.Stack.Data[keepStart:])
	m.Stack.Data = m.Stack.Data[:popStart+int(keep)]

	m.pushHistory(memoryAction[Tag]{kind: actionPopStack, tag: tag, rangeStart: popValueStart, rangeEnd: popValueEnd})
	m.pushHistory(memoryAction[Tag]{kind: actionPushStack, tag: tag, rangeStart: popValueEnd, rangeEnd: pushValueEnd})
	return nil
}

// PushStackBytesFrom bulk-copies length bytes from ptr's target onto the
// stack's unframed region.
func (m *Memory[Tag]) PushStackBytesFrom(ptr VarPointer, length uint32, tag Tag) error {
	from, err := m.GetSlice(ptr, length)
	if err != nil {
		return err
	}
	valueStart := len(m.historicalData)
	m.historicalData = append(m.historicalData, from...)
	valueEnd := len(m.historicalData)

	m.Stack.Data = append(m.Stack.Data, from...)
	m.pushHistory(memoryAction[Tag]{kind: actionPushStack, tag: tag, rangeStart: valueStart, rangeEnd: valueEnd})
	return nil
}

// PopStackBytesInto bulk-copies the top length stack bytes into ptr's
// target, then removes them from the stack.
func (m *Memory[Tag]) PopStackBytesInto(ptr VarPointer, length uint32, tag Tag) error {
	if len(m.Stack.Data) < int(length) {
		return newError(StackTooShort,
			"tried to pop %d bytes from stack when stack is only %d bytes long", length, len(m.Stack.Data))
	}
	if len(m.Stack.Data)-m.topVarUpper() < int(length) {
		return newError(StackPopInvalidatesVariable, "popping from the stack would invalidate a variable")
	}

	buf := m.bufferFor(ptr)
	start, end, err := buf.GetVarRange(ptr, length)
	if err != nil {
		return err
	}

	popLower := len(m.Stack.Data) - int(length)
	from := append([]byte(nil), m.Stack.Data[popLower:]...)

	valueStart := len(m.historicalData)
	m.historicalData = append(m.historicalData, from...)
	valueEnd := len(m.historicalData)
	m.historicalData = append(m.historicalData, buf.Data[start:end]...)
	overwriteEnd := len(m.historicalData)

	copy(buf.Data[start:end], from)
	m.pushHistory(memoryAction[Tag]{
		kind:                   actionSetValue,
		tag:                    tag,
		ptr:                    ptr,
		valueStart:             valueStart,
		valueEndOverwriteStart: valueEnd,
		overwriteEnd:           overwriteEnd,
	})

	m.Stack.Data = m.Stack.Data[:popLower]
	m.pushHistory(memoryAction[Tag]{kind: actionPopStack, tag: tag, rangeStart: valueStart, rangeEnd: valueEnd})
	return nil
}

// LocalPointer resolves a GetLocalWord/SetLocalWord operand to a stack
// pointer. fp is the frame pointer captured on function entry (the 0-based
// count of stack variables that existed at that point, which doubles as the
// 0-based index of the frame's first local); v is the signed operand carried
// by the opcode. v >= 0 addresses the frame's own locals (v=0 is the first
// one allocated); v < 0 reaches below fp into the caller's locals/arguments.
func (m *Memory[Tag]) LocalPointer(fp int, v int32, offset uint32) (VarPointer, error) {
	idx0 := fp + int(v)
	if idx0 < 0 || idx0 >= len(m.Stack.Vars) {
		return VarPointer{}, newError(InvalidPointer,
			"local variable %d (fp=%d) does not exist", v, fp)
	}
	return NewStackPointer(uint32(idx0+1), offset), nil
}
