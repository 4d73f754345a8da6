package asm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"saber/vm"
)

func run(t *testing.T, src string) (string, error) {
	t.Helper()
	p, err := Assemble(src)
	require.NoError(t, err)

	var out bytes.Buffer
	rt := vm.NewRuntime(&out)
	err = rt.RunProgram(p)
	return out.String(), err
}

func TestAssemblePrintLiteralString(t *testing.T) {
	out, err := run(t, `
.file "main.sbr"
.func main
  addcallstackdesc
  loadstr "hello"
  ecall printstr
  removecallstackdesc
  ret
.endfunc
`)
	require.NoError(t, err)
	require.Equal(t, "hello", out)
}

func TestAssembleCallForwardReference(t *testing.T) {
	out, err := run(t, `
.file "main.sbr"
.func main
  addcallstackdesc
  call helper
  removecallstackdesc
  ret
.endfunc

.func helper
  addcallstackdesc
  stackalloc 8
  loadstr "hi"
  setlocalword 0 0
  getlocalword 0 0
  ecall printstr
  removecallstackdesc
  ret
.endfunc
`)
	require.NoError(t, err)
	require.Equal(t, "hi", out)
}

func TestAssembleHeapStoreLoad(t *testing.T) {
	out, err := run(t, `
.func main
  addcallstackdesc
  stackalloc 8
  alloc 8
  setlocalword 0 0
  maketempintword 12
  getlocalword 0 0
  setword 0
  getlocalword 0 0
  getword 0
  ecall printint
  removecallstackdesc
  ret
.endfunc
`)
	require.NoError(t, err)
	require.Equal(t, "12", out)
}

func TestAssembleUndefinedCallFails(t *testing.T) {
	_, err := Assemble(`
.func main
  call nope
  ret
.endfunc
`)
	require.Error(t, err)
}

func TestAssembleUnknownMnemonicFails(t *testing.T) {
	_, err := Assemble(`
.func main
  frobnicate
.endfunc
`)
	require.Error(t, err)
	var aerr *Error
	require.ErrorAs(t, err, &aerr)
}

func TestAssembleMissingEndfuncFails(t *testing.T) {
	_, err := Assemble(`
.func main
  ret
`)
	require.Error(t, err)
}

func TestAssembleStripsComments(t *testing.T) {
	out, err := run(t, `
// entry point
.func main       // begin main
  addcallstackdesc
  loadstr "ok"   // the payload
  ecall printstr
  removecallstackdesc
  ret
.endfunc
`)
	require.NoError(t, err)
	require.Equal(t, "ok", out)
}
