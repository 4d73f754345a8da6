package vm

import (
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/require"
)

func TestVarPointerRoundTrip(t *testing.T) {
	f := func(idx uint32, offset uint32) bool {
		idx &^= stackTagBit // keep within the 31-bit index space
		stack := NewStackPointer(idx, offset)
		require.True(t, stack.IsStack())
		require.Equal(t, idx, stack.VarIdx())
		require.Equal(t, offset, stack.Offset())
		require.Equal(t, stack, PointerFromWord(stack.ToWord()))

		heap := NewHeapPointer(idx, offset)
		require.False(t, heap.IsStack())
		require.Equal(t, idx, heap.VarIdx())
		require.Equal(t, offset, heap.Offset())
		require.Equal(t, heap, PointerFromWord(heap.ToWord()))
		return true
	}
	require.NoError(t, quick.Check(f, nil))
}

func TestVarPointerNull(t *testing.T) {
	require.True(t, NewHeapPointer(0, 0).IsNull())
	require.True(t, NewStackPointer(0, 0).IsNull())
	require.False(t, NewHeapPointer(1, 0).IsNull())
}

func TestVarPointerWithOffset(t *testing.T) {
	p := NewStackPointer(3, 10)
	p2 := p.WithOffset(20)
	require.Equal(t, uint32(10), p.Offset(), "WithOffset must not mutate the receiver")
	require.Equal(t, uint32(20), p2.Offset())

	p.SetOffset(99)
	require.Equal(t, uint32(99), p.Offset())
}

func TestNewPointerOverflowPanics(t *testing.T) {
	require.Panics(t, func() { NewStackPointer(stackTagBit, 0) })
	require.Panics(t, func() { NewHeapPointer(stackTagBit|1, 0) })
}
