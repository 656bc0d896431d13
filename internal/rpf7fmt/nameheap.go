package rpf7fmt

import (
	"errors"
	"fmt"
)

// ErrNameHeapOverflow is returned by EncodeNameHeap when no name-heap
// offset fits in 16 bits at the requested shift.
var ErrNameHeapOverflow = errors.New("rpf7fmt: name heap overflow at this shift")

// maxShiftedOffset is the largest value the entry record's 16-bit
// NameOffset field can hold.
const maxShiftedOffset = 0xFFFF

// DecodeNameHeap scans a raw name-heap block for NUL-terminated strings,
// returning a map from shifted offset (as stored in an entry's
// NameOffset field) to the decoded name. shift must match the value
// carried in the archive header.
func DecodeNameHeap(heap []byte, shift uint8) map[uint32]string {
	names := make(map[uint32]string)
	step := uint32(1) << shift
	mask := step - 1

	start := uint32(0)
	for start < uint32(len(heap)) {
		end := start
		for end < uint32(len(heap)) && heap[end] != 0 {
			end++
		}
		if end >= uint32(len(heap)) {
			break
		}
		names[start>>shift] = string(heap[start:end])
		next := end + 1
		start = (next + mask) &^ mask
	}
	return names
}

// NameHeapEncoding is the result of assigning heap offsets to a set of
// names at a given shift.
type NameHeapEncoding struct {
	Heap    []byte
	Shift   uint8
	Offsets map[string]uint32 // name -> shifted offset, as stored in NameOffset
}

// EncodeNameHeap lays out names (which must include "" for the root) into
// a name heap using the given shift, padding each name's start to a
// 1<<shift boundary and the whole heap to a 16-byte boundary. It returns
// ErrNameHeapOverflow if any name would need a shifted offset beyond 16
// bits, in which case the caller should retry at shift+1.
func EncodeNameHeap(names []string, shift uint8) (*NameHeapEncoding, error) {
	step := 1 << shift
	offsets := make(map[string]uint32, len(names))

	var heap []byte
	pos := 0
	for _, name := range names {
		if pos%step != 0 {
			pad := step - pos%step
			heap = append(heap, make([]byte, pad)...)
			pos += pad
		}

		shifted := uint32(pos) >> shift
		if shifted > maxShiftedOffset {
			return nil, fmt.Errorf("%w: name %q needs offset %d at shift %d", ErrNameHeapOverflow, name, shifted, shift)
		}
		offsets[name] = shifted

		heap = append(heap, []byte(name)...)
		heap = append(heap, 0)
		pos += len(name) + 1
	}

	padded := int(NameBlockSize(uint32(len(heap))))
	if padded > len(heap) {
		heap = append(heap, make([]byte, padded-len(heap))...)
	}

	return &NameHeapEncoding{Heap: heap, Shift: shift, Offsets: offsets}, nil
}
