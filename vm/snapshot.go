package vm

// MemorySnapshot is a byte-exact copy of both regions at one point along a
// Memory's history. Safe to retain indefinitely; it shares no backing array
// with the Memory it was taken from.
type MemorySnapshot struct {
	Stack VarBuffer
	Heap  VarBuffer
}

func cloneVarBuffer(b VarBuffer) VarBuffer {
	return VarBuffer{
		Data: append([]byte(nil), b.Data...),
		Vars: append([]Var(nil), b.Vars...),
	}
}

// mockMemory is the working state a SnapshotWalker replays history against:
// it holds the same two regions a Memory does but is driven purely by a
// pre-recorded action log rather than by live execution.
type mockMemory struct {
	stack VarBuffer
	heap  VarBuffer
}

func (mm *mockMemory) bufferFor(ptr VarPointer) *VarBuffer {
	if ptr.IsStack() {
		return &mm.stack
	}
	return &mm.heap
}

// SnapshotWalker replays a Memory's action log one step at a time, in either
// direction, yielding the exact byte state of both regions at each step.
// Zero value is not usable; obtain one via Memory.ForwardWalker or
// Memory.BackwardWalker.
type SnapshotWalker[Tag any] struct {
	history        []memoryAction[Tag]
	historicalData []byte
	pos            int
	mem            mockMemory
}

// ForwardWalker returns a walker positioned before the first action, with
// both regions empty. Calling Next repeatedly replays the full history from
// scratch.
func (m *Memory[Tag]) ForwardWalker() *SnapshotWalker[Tag] {
	return &SnapshotWalker[Tag]{
		history:        m.history,
		historicalData: m.historicalData,
	}
}

// BackwardWalker returns a walker positioned after the last action, with both
// regions equal to the Memory's current live state. Calling Prev repeatedly
// undoes the history back to empty.
func (m *Memory[Tag]) BackwardWalker() *SnapshotWalker[Tag] {
	return &SnapshotWalker[Tag]{
		history:        m.history,
		historicalData: m.historicalData,
		pos:            len(m.history),
		mem: mockMemory{
			stack: cloneVarBuffer(m.Stack),
			heap:  cloneVarBuffer(m.Heap),
		},
	}
}

// Snapshot returns the walker's current state without advancing.
func (w *SnapshotWalker[Tag]) Snapshot() MemorySnapshot {
	return MemorySnapshot{
		Stack: cloneVarBuffer(w.mem.stack),
		Heap:  cloneVarBuffer(w.mem.heap),
	}
}

// Tag returns the tag attached to the action Next would apply, or the zero
// Tag and false if the walker is at the end of history.
func (w *SnapshotWalker[Tag]) Tag() (Tag, bool) {
	var zero Tag
	if w.pos >= len(w.history) {
		return zero, false
	}
	return w.history[w.pos].tag, true
}

// Next applies the next action in history and returns the resulting
// snapshot. Returns false, unchanged, once every action has been applied.
func (w *SnapshotWalker[Tag]) Next() (MemorySnapshot, bool) {
	if w.pos >= len(w.history) {
		return w.Snapshot(), false
	}
	w.apply(w.history[w.pos])
	w.pos++
	return w.Snapshot(), true
}

// Prev undoes the most recently applied action and returns the resulting
// snapshot. Returns false, unchanged, once history has been fully undone.
func (w *SnapshotWalker[Tag]) Prev() (MemorySnapshot, bool) {
	if w.pos <= 0 {
		return w.Snapshot(), false
	}
	w.pos--
	w.unapply(w.history[w.pos])
	return w.Snapshot(), true
}

func (w *SnapshotWalker[Tag]) apply(a memoryAction[Tag]) {
	switch a.kind {
	case actionSetValue:
		buf := w.mem.bufferFor(a.ptr)
		length := a.valueEndOverwriteStart - a.valueStart
		start, end, err := buf.GetVarRange(a.ptr, uint32(length))
		if err != nil {
			panic("vm: corrupt memory history: " + err.Error())
		}
		copy(buf.Data[start:end], w.historicalData[a.valueStart:a.valueEndOverwriteStart])

	case actionPushStack:
		w.mem.stack.Data = append(w.mem.stack.Data, w.historicalData[a.rangeStart:a.rangeEnd]...)

	case actionPopStack:
		n := a.rangeEnd - a.rangeStart
		w.mem.stack.Data = w.mem.stack.Data[:len(w.mem.stack.Data)-n]

	case actionPopStackVar:
		total := a.stackEnd - a.varStart
		w.mem.stack.Vars = w.mem.stack.Vars[:len(w.mem.stack.Vars)-1]
		w.mem.stack.Data = w.mem.stack.Data[:len(w.mem.stack.Data)-total]

	case actionAllocStackVar:
		idx := len(w.mem.stack.Data)
		w.mem.stack.Vars = append(w.mem.stack.Vars, Var{Idx: idx, Len: a.allocLen})
		w.mem.stack.Data = append(w.mem.stack.Data, make([]byte, a.allocLen)...)

	case actionAllocHeapVar:
		idx := len(w.mem.heap.Data)
		w.mem.heap.Vars = append(w.mem.heap.Vars, Var{Idx: idx, Len: a.allocLen})
		w.mem.heap.Data = append(w.mem.heap.Data, make([]byte, a.allocLen)...)
	}
}

func (w *SnapshotWalker[Tag]) unapply(a memoryAction[Tag]) {
	switch a.kind {
	case actionSetValue:
		buf := w.mem.bufferFor(a.ptr)
		length := a.overwriteEnd - a.valueEndOverwriteStart
		start, end, err := buf.GetVarRange(a.ptr, uint32(length))
		if err != nil {
			panic("vm: corrupt memory history: " + err.Error())
		}
		copy(buf.Data[start:end], w.historicalData[a.valueEndOverwriteStart:a.overwriteEnd])

	case actionPushStack:
		n := a.rangeEnd - a.rangeStart
		w.mem.stack.Data = w.mem.stack.Data[:len(w.mem.stack.Data)-n]

	case actionPopStack:
		w.mem.stack.Data = append(w.mem.stack.Data, w.historicalData[a.rangeStart:a.rangeEnd]...)

	case actionPopStackVar:
		varLen := a.varEndStackStart - a.varStart
		idx := len(w.mem.stack.Data)
		w.mem.stack.Vars = append(w.mem.stack.Vars, Var{Idx: idx, Len: uint32(varLen)})
		w.mem.stack.Data = append(w.mem.stack.Data, w.historicalData[a.varStart:a.stackEnd]...)

	case actionAllocStackVar:
		w.mem.stack.Vars = w.mem.stack.Vars[:len(w.mem.stack.Vars)-1]
		w.mem.stack.Data = w.mem.stack.Data[:len(w.mem.stack.Data)-int(a.allocLen)]

	case actionAllocHeapVar:
		w.mem.heap.Vars = w.mem.heap.Vars[:len(w.mem.heap.Vars)-1]
		w.mem.heap.Data = w.mem.heap.Data[:len(w.mem.heap.Data)-int(a.allocLen)]
	}
}
