package console

import (
	"bytes"
	"testing"
)

func TestWriterFlushesToUnderlyingWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	for _, b := range []byte("hi") {
		if err := w.WriteByte(b); err != nil {
			t.Fatalf("WriteByte: %v", err)
		}
	}
	if buf.Len() != 0 {
		t.Fatalf("output appeared before Flush: %q", buf.String())
	}

	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if buf.String() != "hi" {
		t.Errorf("buf = %q, want %q", buf.String(), "hi")
	}
}

func TestBufferAccumulatesBytes(t *testing.T) {
	b := NewBuffer()
	for _, c := range []byte("semihosted") {
		if err := b.WriteByte(c); err != nil {
			t.Fatalf("WriteByte: %v", err)
		}
	}
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if b.String() != "semihosted" {
		t.Errorf("String() = %q, want %q", b.String(), "semihosted")
	}
}
