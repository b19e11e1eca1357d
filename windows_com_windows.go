//go:build windows

package capture

import (
	"fmt"
	"syscall"
	"unsafe"
)

// comGUID matches the in-memory layout of a Win32 GUID for passing IIDs to
// QueryInterface by pointer.
type comGUID struct {
	data1 uint32
	data2 uint16
	data3 uint16
	data4 [8]byte
}

const vtblQueryInterface = 0
const vtblRelease = 2

// comVtblFn resolves a COM vtable function pointer by index.
func comVtblFn(obj uintptr, idx int) uintptr {
	vtablePtr := *(*uintptr)(unsafe.Pointer(obj))
	return *(*uintptr)(unsafe.Pointer(vtablePtr + uintptr(idx)*unsafe.Sizeof(uintptr(0))))
}

// comCall invokes a vtable method taking (self, ...args) and returns its
// HRESULT, erroring out when the high bit of the result is set.
func comCall(obj uintptr, vtblIdx int, args ...uintptr) (uintptr, error) {
	call := append([]uintptr{obj}, args...)
	hr, _, _ := syscall.SyscallN(comVtblFn(obj, vtblIdx), call...)
	if int32(hr) < 0 {
		return hr, fmt.Errorf("HRESULT 0x%08X", uint32(hr))
	}
	return hr, nil
}

// comRelease calls IUnknown::Release, ignoring the (irrelevant) refcount
// return value. A zero handle is a no-op.
func comRelease(obj uintptr) {
	if obj == 0 {
		return
	}
	syscall.SyscallN(comVtblFn(obj, vtblRelease), obj)
}
