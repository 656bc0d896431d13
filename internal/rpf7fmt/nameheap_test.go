package rpf7fmt

import (
	"errors"
	"testing"
)

func TestEncodeDecodeNameHeap_RoundTrip(t *testing.T) {
	names := []string{"", "data", "config.xml", "textures"}
	enc, err := EncodeNameHeap(names, 0)
	if err != nil {
		t.Fatalf("EncodeNameHeap: %v", err)
	}
	if len(enc.Heap)%NameBlockAlign != 0 {
		t.Fatalf("heap length %d not aligned to %d", len(enc.Heap), NameBlockAlign)
	}

	decoded := DecodeNameHeap(enc.Heap, enc.Shift)
	for _, name := range names {
		offset, ok := enc.Offsets[name]
		if !ok {
			t.Fatalf("no offset assigned for %q", name)
		}
		got, ok := decoded[offset]
		if !ok {
			t.Fatalf("decoded heap missing offset %d for %q", offset, name)
		}
		if got != name {
			t.Fatalf("decoded name at offset %d = %q, want %q", offset, got, name)
		}
	}
}

func TestEncodeNameHeap_RootIsEmptyAtOffsetZero(t *testing.T) {
	enc, err := EncodeNameHeap([]string{""}, 0)
	if err != nil {
		t.Fatalf("EncodeNameHeap: %v", err)
	}
	if off := enc.Offsets[""]; off != 0 {
		t.Fatalf("root offset = %d, want 0", off)
	}
}

func TestEncodeNameHeap_OverflowTriggersRetryAtHigherShift(t *testing.T) {
	// Build enough distinct long names that shift 0 cannot address them
	// all within 16 bits, but shift 1 can.
	names := []string{""}
	for i := 0; i < 40000; i++ {
		names = append(names, "n")
	}
	// Force a single large name near the end so its byte offset alone
	// already exceeds 0xFFFF at shift 0.
	long := make([]byte, 70000)
	for i := range long {
		long[i] = 'a'
	}
	names = append(names, string(long))
	names = append(names, "trailing")

	_, err := EncodeNameHeap(names, 0)
	if !errors.Is(err, ErrNameHeapOverflow) {
		t.Fatalf("expected ErrNameHeapOverflow at shift 0, got %v", err)
	}
}

func TestDecodeNameHeap_SkipsPaddingBetweenNames(t *testing.T) {
	enc, err := EncodeNameHeap([]string{"", "a", "b"}, 3) // step = 8
	if err != nil {
		t.Fatalf("EncodeNameHeap: %v", err)
	}
	decoded := DecodeNameHeap(enc.Heap, 3)
	if len(decoded) != 3 {
		t.Fatalf("decoded %d names, want 3 (padding bytes must not be read as empty names)", len(decoded))
	}
}
