package tce

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// Both PTRACE_PEEKTEXT/PTRACE_POKETEXT operate on a full machine word at a
// time; remote_addr in ReadTarget/WriteTarget need not be word-aligned and
// n may be arbitrary, so both primitives below round down to the
// enclosing word and splice partial words in, exactly as spec.md §4.1.2
// requires.
const (
	wordSize  = 8
	wordAlign = wordSize - 1
)

func peekWord(pid int, addr uintptr) (uint64, error) {
	var buf [wordSize]byte
	n, err := unix.PtracePeekData(pid, addr, buf[:])
	if err != nil {
		return 0, err
	}
	if n != wordSize {
		return 0, unix.EIO
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func pokeWord(pid int, addr uintptr, word uint64) error {
	var buf [wordSize]byte
	binary.LittleEndian.PutUint64(buf[:], word)
	n, err := unix.PtracePokeData(pid, addr, buf[:])
	if err != nil {
		return err
	}
	if n != wordSize {
		return unix.EIO
	}
	return nil
}

// ReadTarget copies n bytes out of the target's address space starting at
// remoteAddr.
func (h *TraceeHandle) ReadTarget(remoteAddr uintptr, n int) ([]byte, error) {
	dest := make([]byte, n)
	addr := remoteAddr
	off := 0
	for off < n {
		base := addr &^ uintptr(wordAlign)
		shift := int(addr - base)
		todo := wordSize - shift
		if remaining := n - off; todo > remaining {
			todo = remaining
		}

		word, err := peekWord(h.pid, base)
		if err != nil {
			return nil, &PeekError{Pid: h.pid, Addr: addr, Err: err}
		}
		var wordBytes [wordSize]byte
		binary.LittleEndian.PutUint64(wordBytes[:], word)
		copy(dest[off:off+todo], wordBytes[shift:shift+todo])

		off += todo
		addr += uintptr(todo)
	}
	return dest, nil
}

// WriteTarget writes data into the target's address space starting at
// remoteAddr. Where the head or tail of the range doesn't cover a whole
// word, the enclosing word is read first so the write can't clobber
// adjacent bytes; on failure, the region covered by data must be treated
// as indeterminate by the caller.
func (h *TraceeHandle) WriteTarget(remoteAddr uintptr, data []byte) error {
	addr := remoteAddr
	off := 0
	n := len(data)
	for off < n {
		base := addr &^ uintptr(wordAlign)
		shift := int(addr - base)
		todo := wordSize - shift
		if remaining := n - off; todo > remaining {
			todo = remaining
		}

		var wordBytes [wordSize]byte
		if todo != wordSize {
			word, err := peekWord(h.pid, base)
			if err != nil {
				return &PokeError{Pid: h.pid, Addr: addr, Err: err}
			}
			binary.LittleEndian.PutUint64(wordBytes[:], word)
		}
		copy(wordBytes[shift:shift+todo], data[off:off+todo])

		if err := pokeWord(h.pid, base, binary.LittleEndian.Uint64(wordBytes[:])); err != nil {
			return &PokeError{Pid: h.pid, Addr: addr, Err: err}
		}

		off += todo
		addr += uintptr(todo)
	}
	return nil
}
