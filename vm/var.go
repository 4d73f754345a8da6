package vm

import "encoding/binary"

// Var is a variable record: a contiguous byte range within a region's data
// buffer. Variables are addressed by 1-based index; meta is reserved for
// future use (always zero today; see the Open Question in DESIGN.md) and
// any code that starts using it must also extend SnapshotWalker's replay.
type Var struct {
	Idx  int    // byte offset into the region's data where storage begins
	Len  uint32 // byte length of the variable
	Meta uint32 // reserved, always zero
}

// Upper returns the byte offset one past the end of this variable.
func (v Var) Upper() int {
	return v.Idx + int(v.Len)
}

// VarBuffer is a single region: raw byte storage plus the variable table
// describing which spans of it are live variables. On the stack, data may
// also carry unframed bytes above the highest variable's upper bound: the
// typed value stack used for intermediate results.
type VarBuffer struct {
	Data []byte
	Vars []Var
}

// NewVarBuffer returns an empty region.
func NewVarBuffer() VarBuffer {
	return VarBuffer{}
}

// AddVar appends a zero-filled len-byte variable and returns its 1-based
// index.
func (b *VarBuffer) AddVar(length uint32) uint32 {
	idx := len(b.Data)
	b.Vars = append(b.Vars, Var{Idx: idx, Len: length})
	b.Data = append(b.Data, make([]byte, length)...)
	return uint32(len(b.Vars))
}

// GetVarRange bounds-checks ptr against this region's variable table and
// returns the absolute [start,end) byte range it names.
func (b *VarBuffer) GetVarRange(ptr VarPointer, length uint32) (start, end int, err error) {
	if ptr.IsNull() {
		return 0, 0, errInvalidPointer(ptr)
	}
	v, ok := b.variable(ptr)
	if !ok {
		return 0, 0, errInvalidPointer(ptr)
	}
	if ptr.Offset() >= v.Len {
		return 0, 0, errInvalidOffset(v, ptr)
	}
	if ptr.Offset()+length > v.Len {
		return 0, 0, errInvalidOffset(v, ptr.WithOffset(ptr.Offset()+length))
	}
	start = v.Idx + int(ptr.Offset())
	return start, start + int(length), nil
}

func (b *VarBuffer) variable(ptr VarPointer) (Var, bool) {
	i := ptr.VarIdx()
	if i == 0 || int(i) > len(b.Vars) {
		return Var{}, false
	}
	return b.Vars[i-1], true
}

// GetVar reads sizeof(T) bytes at ptr's target, interpreted as little-endian.
func GetVar[T Word](b *VarBuffer, ptr VarPointer) (T, error) {
	var zero T
	length := wordSize[T]()
	start, end, err := b.GetVarRange(ptr, length)
	if err != nil {
		return zero, err
	}
	return decodeWord[T](b.Data[start:end]), nil
}

// Set writes t at ptr's target and returns the previous value.
func Set[T Word](b *VarBuffer, ptr VarPointer, t T) (T, error) {
	var zero T
	length := wordSize[T]()
	start, end, err := b.GetVarRange(ptr, length)
	if err != nil {
		return zero, err
	}
	prev := decodeWord[T](b.Data[start:end])
	encodeWord(b.Data[start:end], t)
	return prev, nil
}

// ShrinkVarsTo retains only variables [0,n) (1-based boundary) and truncates
// Data to the highest remaining variable's upper bound, or 0 if none remain.
// Precondition: n <= len(b.Vars). Stack-only operation.
func (b *VarBuffer) ShrinkVarsTo(n int) {
	b.Vars = b.Vars[:n]
	if n == 0 {
		b.Data = b.Data[:0]
		return
	}
	b.Data = b.Data[:b.Vars[n-1].Upper()]
}

// Word constrains the plain-old-data types the typed stack and variable
// buffers may read/write directly.
type Word interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64
}

func wordSize[T Word]() uint32 {
	var t T
	switch any(t).(type) {
	case int8, uint8:
		return 1
	case int16, uint16:
		return 2
	case int32, uint32:
		return 4
	default:
		return 8
	}
}

func decodeWord[T Word](b []byte) T {
	switch wordSize[T]() {
	case 1:
		return T(b[0])
	case 2:
		return T(binary.LittleEndian.Uint16(b))
	case 4:
		return T(binary.LittleEndian.Uint32(b))
	default:
		return T(binary.LittleEndian.Uint64(b))
	}
}

func encodeWord[T Word](b []byte, t T) {
	switch wordSize[T]() {
	case 1:
		b[0] = byte(t)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(t))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(t))
	default:
		binary.LittleEndian.PutUint64(b, uint64(t))
	}
}
