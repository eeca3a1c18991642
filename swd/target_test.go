package swd

import "testing"

func newTestTarget(t *testing.T, idcode uint32) (*Target, *fakeTransport) {
	ft := newFakeTransport(idcode)
	drv := NewDriver(ft)
	dap := NewDAP(drv)
	if err := dap.ResetState(); err != nil {
		t.Fatalf("ResetState: %v", err)
	}
	mem := NewMemAP(dap)
	return NewTarget(mem), ft
}

func TestTargetInitializeObservesRunning(t *testing.T) {
	tgt, _ := newTestTarget(t, 0x2BA01477)

	if err := tgt.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if tgt.State() != TargetRunning {
		t.Errorf("state = %s, want running", tgt.State())
	}
}

func TestTargetHaltPollsUntilSHalt(t *testing.T) {
	tgt, _ := newTestTarget(t, 0x2BA01477)

	if err := tgt.Halt(); err != nil {
		t.Fatalf("Halt: %v", err)
	}
	if tgt.State() != TargetHalted {
		t.Errorf("state = %s, want halted", tgt.State())
	}
}

func TestTargetResumeClearsHalt(t *testing.T) {
	tgt, ft := newTestTarget(t, 0x2BA01477)
	if err := tgt.Halt(); err != nil {
		t.Fatalf("Halt: %v", err)
	}

	if err := tgt.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if tgt.State() != TargetRunning {
		t.Errorf("state = %s, want running", tgt.State())
	}
	if ft.mem[regDHCSR]&dhcsrS_HALT != 0 {
		t.Error("S_HALT should clear once C_HALT is dropped")
	}
}

func TestRegisterAccessRequiresHalted(t *testing.T) {
	tgt, _ := newTestTarget(t, 0x2BA01477)
	// never halted
	_, err := tgt.ReadRegister(regR0)
	if err == nil {
		t.Fatal("expected an error reading a register while running")
	}
	se, ok := err.(*Error)
	if !ok || se.Kind != ErrTargetState {
		t.Errorf("got %v, want ErrTargetState", err)
	}
}

func TestReadWriteRegisterRoundTrip(t *testing.T) {
	tgt, ft := newTestTarget(t, 0x2BA01477)
	if err := tgt.Halt(); err != nil {
		t.Fatalf("Halt: %v", err)
	}

	if err := tgt.WriteRegister(regR0, 0x11223344); err != nil {
		t.Fatalf("WriteRegister: %v", err)
	}
	if ft.mem[regDCRDR] != 0x11223344 {
		t.Fatalf("DCRDR = %#x after WriteRegister", ft.mem[regDCRDR])
	}

	// the core's R0 changes; ReadRegister must fetch it via DCRSR/DCRDR.
	ft.r0 = 0x55667788
	v, err := tgt.ReadRegister(regR0)
	if err != nil {
		t.Fatalf("ReadRegister: %v", err)
	}
	if v != 0x55667788 {
		t.Errorf("ReadRegister = %#x, want 0x55667788", v)
	}
}

func TestHaltCauseDecodesBreakpoint(t *testing.T) {
	tgt, ft := newTestTarget(t, 0x2BA01477)
	ft.mem[regDFSR] = dfsrHALTED | dfsrBKPT

	cause, err := tgt.HaltCause()
	if err != nil {
		t.Fatalf("HaltCause: %v", err)
	}
	if !cause.Halted || !cause.Breakpoint {
		t.Errorf("HaltCause = %+v, want Halted+Breakpoint", cause)
	}
	if cause.Watchpoint || cause.VectorCatch || cause.External {
		t.Errorf("HaltCause = %+v, unexpected bits set", cause)
	}
}

func TestResetHaltSetsVectorCatchAndHalts(t *testing.T) {
	tgt, ft := newTestTarget(t, 0x2BA01477)

	if err := tgt.ResetHalt(); err != nil {
		t.Fatalf("ResetHalt: %v", err)
	}
	if tgt.State() != TargetHalted {
		t.Errorf("state = %s, want halted", tgt.State())
	}
	if ft.mem[regDEMCR]&demcrVC_CORERESET == 0 {
		t.Error("ResetHalt should set DEMCR.VC_CORERESET")
	}
}
