//go:build linux

package symjit

import (
	"syscall"
	"unsafe"
)

// execPage is an mmap'd region holding emitted machine code. Allocation is
// W, then, once the code is fully written, the page is flipped to R+X with
// a separate mprotect call rather than mapped R+W+X from the start, so the
// page is never simultaneously writable and executable.
type execPage struct {
	addr uintptr
	data []byte
}

// allocExecPage maps a zeroed, writable page-aligned region at least big
// enough to hold size bytes.
func allocExecPage(size int) (*execPage, error) {
	pageSize := syscall.Getpagesize()
	n := (size + pageSize - 1) &^ (pageSize - 1)
	if n == 0 {
		n = pageSize
	}
	b, err := syscall.Mmap(-1, 0, n, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_PRIVATE|syscall.MAP_ANON)
	if err != nil {
		return nil, wrapErr(KindManagement, err, "mmap executable page")
	}
	return &execPage{addr: uintptr(unsafe.Pointer(&b[0])), data: b}, nil
}

// writeAndSeal copies code into the page and flips it from writable to
// executable. The page must not be written to again afterward.
func (p *execPage) writeAndSeal(code []byte) error {
	copy(p.data, code)
	if err := syscall.Mprotect(p.data, syscall.PROT_READ|syscall.PROT_EXEC); err != nil {
		return wrapErr(KindManagement, err, "mprotect executable page")
	}
	return nil
}

// free releases the mapping. Compiled functions must not be called again
// after this returns.
func (p *execPage) free() error {
	return syscall.Munmap(p.data)
}

// entryPointer returns the address of the function starting at offset
// bytes into the page, for callCompiled to jump to.
func (p *execPage) entryPointer(offset int) unsafe.Pointer {
	return unsafe.Pointer(p.addr + uintptr(offset))
}
