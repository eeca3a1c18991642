package swd

import "testing"

func TestHeaderByteParity(t *testing.T) {
	cases := []transaction{
		{apndp: false, rnw: true, a23: 0},
		{apndp: true, rnw: false, a23: 2},
		{apndp: true, rnw: true, a23: 3},
	}
	for _, tx := range cases {
		h := headerByte(tx)
		if h&0x01 == 0 {
			t.Errorf("tx %+v: Start bit must be 1", tx)
		}
		if (h>>6)&1 != 0 {
			t.Errorf("tx %+v: Stop bit must be 0", tx)
		}
		if (h>>7)&1 != 1 {
			t.Errorf("tx %+v: Park bit must be 1", tx)
		}

		parityBits := uint32((h >> 1) & 0x0F)
		wantParity := boolBit(evenParity(parityBits, 4))
		if (h>>5)&1 != wantParity {
			t.Errorf("tx %+v: header parity bit wrong, header=%#02x", tx, h)
		}
	}
}

func TestDecodeHeaderRoundTrips(t *testing.T) {
	cases := []transaction{
		{apndp: false, rnw: true, a23: 1},
		{apndp: true, rnw: false, a23: 3},
		{apndp: true, rnw: true, a23: 0},
	}
	for _, tx := range cases {
		h := headerByte(tx)
		bits := make([]byte, 8)
		for i := range bits {
			bits[i] = (h >> uint(i)) & 1
		}
		got := decodeHeader(bits)
		if got != tx {
			t.Errorf("decodeHeader(headerByte(%+v)) = %+v", tx, got)
		}
	}
}

func TestInitializeReadsIDCODE(t *testing.T) {
	ft := newFakeTransport(0x2BA01477)
	drv := NewDriver(ft)

	idcode, err := drv.Initialize()
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if idcode != 0x2BA01477 {
		t.Errorf("idcode = %#08x, want %#08x", idcode, 0x2BA01477)
	}
}

func TestInitializeNoTargetOnZeroIDCODE(t *testing.T) {
	ft := newFakeTransport(0)
	drv := NewDriver(ft)

	_, err := drv.Initialize()
	if err == nil {
		t.Fatal("expected an error for a zero IDCODE")
	}
	se, ok := err.(*Error)
	if !ok || se.Kind != ErrNoTarget {
		t.Errorf("got %v, want ErrNoTarget", err)
	}
}
