package swd

import "testing"

type fakeConsole struct {
	bytes []byte
}

func (c *fakeConsole) WriteByte(b byte) error {
	c.bytes = append(c.bytes, b)
	return nil
}

func (c *fakeConsole) Flush() error { return nil }

func newTestSemihost(t *testing.T) (*Semihost, *Target, *fakeTransport, *fakeConsole) {
	ft := newFakeTransport(0x2BA01477)
	drv := NewDriver(ft)
	dap := NewDAP(drv)
	if err := dap.ResetState(); err != nil {
		t.Fatalf("ResetState: %v", err)
	}
	mem := NewMemAP(dap)
	tgt := NewTarget(mem)
	if err := tgt.Halt(); err != nil {
		t.Fatalf("Halt: %v", err)
	}
	console := &fakeConsole{}
	return NewSemihost(tgt, console), tgt, ft, console
}

// seedBreakpoint arranges for the fake target to look halted-at-a-BKPT
// exactly the way §4.5 expects: DFSR.BKPT set, PC pointing at a 0xBEAB
// halfword, R0/R1 holding the semihosting operation and parameter.
func seedBreakpoint(ft *fakeTransport, pc uint32, lowHalf bool, r0, r1 uint32) {
	ft.mem[regDFSR] = dfsrHALTED | dfsrBKPT

	wordAddr := pc &^ 3
	instrWord := ft.mem[wordAddr]
	if lowHalf {
		instrWord = (instrWord &^ 0xFFFF) | uint32(bkptSemihostingInstr)
	} else {
		instrWord = (instrWord & 0xFFFF) | uint32(bkptSemihostingInstr)<<16
	}
	ft.mem[wordAddr] = instrWord

	ft.pcValue = pc
	ft.r0 = r0
	ft.r1 = r1
}

func TestSemihostSysWriteC(t *testing.T) {
	semi, tgt, ft, console := newTestSemihost(t)
	seedBreakpoint(ft, 0x08000100, true, sysWRITEC, uint32('X'))
	_ = tgt

	if err := semi.OnHalt(); err != nil {
		t.Fatalf("OnHalt: %v", err)
	}

	if string(console.bytes) != "X" {
		t.Errorf("console got %q, want %q", console.bytes, "X")
	}
	wantPC := uint32(0x08000100) + 2
	// OnHalt resumed the target, so Target refuses register reads now;
	// check the PC the fake core was given instead.
	gotPC := ft.pcValue
	if gotPC != wantPC {
		t.Errorf("PC = %#x, want %#x", gotPC, wantPC)
	}
	if tgt.State() != TargetRunning {
		t.Errorf("state = %s, want running after resume", tgt.State())
	}
}

func TestSemihostUnsupportedOperationLeavesPC(t *testing.T) {
	semi, tgt, ft, _ := newTestSemihost(t)
	seedBreakpoint(ft, 0x08000200, true, 0x04 /* SYS_WRITE0, unsupported */, 0)

	err := semi.OnHalt()
	if err == nil {
		t.Fatal("expected ErrSemihostingUnsupported")
	}
	se, ok := err.(*Error)
	if !ok || se.Kind != ErrSemihostingUnsupported {
		t.Fatalf("got %v, want ErrSemihostingUnsupported", err)
	}

	gotPC, rerr := tgt.ReadPC()
	if rerr != nil {
		t.Fatalf("ReadPC: %v", rerr)
	}
	if uint32(gotPC) != 0x08000200 {
		t.Errorf("PC = %#x, want unchanged 0x08000200", gotPC)
	}
}

func TestSemihostSysExitBareReason(t *testing.T) {
	semi, _, ft, _ := newTestSemihost(t)
	seedBreakpoint(ft, 0x08000300, true, sysEXIT, 1 /* ADP_Stopped_Fatal-ish, not the pointer form */)

	err := semi.OnHalt()
	exitErr, ok := err.(*ExitError)
	if !ok {
		t.Fatalf("got %v, want *ExitError", err)
	}
	if exitErr.Code != 1 {
		t.Errorf("Code = %d, want 1", exitErr.Code)
	}
}

func TestSemihostSysExitPointerForm(t *testing.T) {
	semi, _, ft, _ := newTestSemihost(t)
	block := uint32(0x00002000)
	ft.mem[block] = adpStoppedApplicationExit
	ft.mem[block+4] = 7

	seedBreakpoint(ft, 0x08000400, true, sysEXIT, block)

	err := semi.OnHalt()
	exitErr, ok := err.(*ExitError)
	if !ok {
		t.Fatalf("got %v, want *ExitError", err)
	}
	if exitErr.Code != 7 {
		t.Errorf("Code = %d, want 7", exitErr.Code)
	}
}
