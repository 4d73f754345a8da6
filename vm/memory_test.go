package vm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestStackPopSafety: a typed pop never crosses a variable boundary.
func TestStackPopSafety(t *testing.T) {
	m := NewMemory[int]()

	_, err := PopMemStack[uint64](m, 0)
	var verr *Error
	require.ErrorAs(t, err, &verr)
	require.Equal(t, StackTooShort, verr.Kind)

	// Allocate a variable, then push exactly one extra unframed word. Popping
	// it is fine; popping again must hit the variable boundary.
	m.AddStackVar(8, 0)
	PushMemStack(m, uint64(7), 0)

	v, err := PopMemStack[uint64](m, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(7), v)

	_, err = PopMemStack[uint64](m, 0)
	require.ErrorAs(t, err, &verr)
	require.Equal(t, StackPopInvalidatesVariable, verr.Kind)
}

func TestMemorySetValueRecordsPreviousValue(t *testing.T) {
	m := NewMemory[int]()
	ptr := m.AddStackVar(8, 0)

	prev, err := SetMemVar(m, ptr, uint64(10), 1)
	require.NoError(t, err)
	require.Zero(t, prev)

	prev, err = SetMemVar(m, ptr, uint64(20), 2)
	require.NoError(t, err)
	require.Equal(t, uint64(10), prev)

	got, err := GetMemVar[uint64](m, ptr)
	require.NoError(t, err)
	require.Equal(t, uint64(20), got)
}

func TestPushStackBytesFromAndPopKeep(t *testing.T) {
	m := NewMemory[int]()
	ptr := m.AddStackVar(4, 0)
	_, err := SetMemVar(m, ptr, uint32(0xdeadbeef), 0)
	require.NoError(t, err)

	require.NoError(t, m.PushStackBytesFrom(ptr, 4, 1))
	PushMemStack(m, uint32(7), 2)

	// Drop the copied variable bytes while keeping the 7 on top.
	require.NoError(t, m.PopKeepBytes(4, 4, 3))
	v, err := PopMemStack[uint32](m, 4)
	require.NoError(t, err)
	require.Equal(t, uint32(7), v)
}

func TestPopStackVarPreservesTrailingBytes(t *testing.T) {
	m := NewMemory[int]()
	m.AddStackVar(4, 0)
	PushMemStack(m, uint32(99), 0)

	v, err := m.PopStackVar(0)
	require.NoError(t, err)
	require.Equal(t, uint32(4), v.Len)
	require.Empty(t, m.Stack.Vars)
	require.Empty(t, m.Stack.Data)

	// The log entry keeps the variable's bytes and the unframed word above it.
	a := m.history[len(m.history)-1]
	require.Equal(t, []byte{0, 0, 0, 0, 99, 0, 0, 0}, m.historicalData[a.varStart:a.stackEnd])
}

func TestPopStackVarEmptyFails(t *testing.T) {
	m := NewMemory[int]()
	_, err := m.PopStackVar(0)
	var verr *Error
	require.ErrorAs(t, err, &verr)
	require.Equal(t, InvalidPointer, verr.Kind)
}
