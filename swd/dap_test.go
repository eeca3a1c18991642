package swd

import "testing"

func newTestDAP(idcode uint32) (*DAP, *fakeTransport) {
	ft := newFakeTransport(idcode)
	drv := NewDriver(ft)
	return NewDAP(drv), ft
}

func TestDAPResetStatePowersUp(t *testing.T) {
	dap, ft := newTestDAP(0x2BA01477)

	if err := dap.ResetState(); err != nil {
		t.Fatalf("ResetState: %v", err)
	}
	if len(ft.abortWrites) == 0 {
		t.Error("ResetState should clear sticky bits via ABORT")
	}
	want := uint32(ctrlstatCDBGPWRUPACK | ctrlstatCSYSPWRUPACK)
	if ft.ctrlstat&want != want {
		t.Errorf("ctrlstat = %#x, power-up ACKs not set", ft.ctrlstat)
	}
}

func TestWriteAPSelectsOncePerBank(t *testing.T) {
	dap, ft := newTestDAP(0x2BA01477)
	if err := dap.ResetState(); err != nil {
		t.Fatalf("ResetState: %v", err)
	}
	ft.selectWrites = 0

	if err := dap.WriteAP(0, apCSW, 0x23000052); err != nil {
		t.Fatalf("WriteAP(CSW): %v", err)
	}
	if err := dap.WriteAP(0, apTAR, 0x20000000); err != nil {
		t.Fatalf("WriteAP(TAR): %v", err)
	}
	if err := dap.WriteAP(0, apDRW, 0xdeadbeef); err != nil {
		t.Fatalf("WriteAP(DRW): %v", err)
	}

	// ResetState's CTRL/STAT access already selected AP 0 bank 0, so the
	// three bank-0 AP writes need no further SELECT write.
	if ft.selectWrites != 0 {
		t.Errorf("selectWrites = %d, want 0 for three AP accesses to the already-selected bank", ft.selectWrites)
	}
	if ft.mem[0x20000000] != 0xdeadbeef {
		t.Errorf("mem[0x20000000] = %#x, want 0xdeadbeef", ft.mem[0x20000000])
	}
}

func TestReadAPDrainsThroughRDBUFF(t *testing.T) {
	dap, ft := newTestDAP(0x2BA01477)
	if err := dap.ResetState(); err != nil {
		t.Fatalf("ResetState: %v", err)
	}
	ft.mem[0x20000000] = 0x12345678

	if err := dap.WriteAP(0, apTAR, 0x20000000); err != nil {
		t.Fatalf("WriteAP(TAR): %v", err)
	}
	v, err := dap.ReadAP(0, apDRW)
	if err != nil {
		t.Fatalf("ReadAP(DRW): %v", err)
	}
	if v != 0x12345678 {
		t.Errorf("ReadAP(DRW) = %#x, want 0x12345678", v)
	}
}

func TestWaitAckRetries(t *testing.T) {
	dap, ft := newTestDAP(0x2BA01477)
	if err := dap.ResetState(); err != nil {
		t.Fatalf("ResetState: %v", err)
	}
	ft.ackScript = []ackResult{ackResultWait, ackResultWait, ackResultOK}

	if err := dap.WriteAP(0, apCSW, 0x23000052); err != nil {
		t.Fatalf("WriteAP should succeed after two WAITs: %v", err)
	}
}

func TestFaultAckRecovers(t *testing.T) {
	dap, ft := newTestDAP(0x2BA01477)
	if err := dap.ResetState(); err != nil {
		t.Fatalf("ResetState: %v", err)
	}
	ft.ackScript = []ackResult{ackResultFault}

	err := dap.WriteAP(0, apCSW, 0x23000052)
	if err == nil {
		t.Fatal("expected a protocol-fault error")
	}
	se, ok := err.(*Error)
	if !ok || se.Kind != ErrProtocolFault {
		t.Fatalf("got %v, want ErrProtocolFault", err)
	}
	if len(ft.abortWrites) == 0 {
		t.Error("recoverFault should have written ABORT to clear the sticky bit")
	}
	if stickyErr, stickyCmp, stickyOrun, wdataErr := dap.StickyFaultBits(); !stickyErr || !stickyCmp || !stickyOrun || !wdataErr {
		t.Errorf("StickyFaultBits() = (%t,%t,%t,%t), want all true after a full-mask fault",
			stickyErr, stickyCmp, stickyOrun, wdataErr)
	}

	// The sticky bit is cleared; the same write should now succeed.
	if err := dap.WriteAP(0, apCSW, 0x23000052); err != nil {
		t.Fatalf("WriteAP should succeed once the sticky fault is cleared: %v", err)
	}
}
