package swd

import (
	"testing"
	"time"
)

func TestOpenBringsUpFullStack(t *testing.T) {
	ft := newFakeTransport(0x2BA01477)

	sess, err := Open(ft)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if sess.IDCode() != 0x2BA01477 {
		t.Errorf("IDCode = %#08x, want %#08x", sess.IDCode(), 0x2BA01477)
	}
	if sess.Target.State() == TargetUnknown {
		t.Error("Target.Initialize should have set a known state")
	}

	if err := sess.Target.WriteWord(0x20000000, 0x42); err != nil {
		t.Fatalf("WriteWord through the opened session: %v", err)
	}
	if ft.mem[0x20000000] != 0x42 {
		t.Error("session's MemAP is not wired to the same DAP/Driver stack")
	}
}

func TestResetUnderResetBracketsReset(t *testing.T) {
	ft := newFakeTransport(0x2BA01477)
	sess, err := Open(ft)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	var sawResetDuringFn bool
	err = sess.ResetUnderReset(time.Millisecond, func() error {
		sawResetDuringFn = ft.resetAsserted
		return nil
	})
	if err != nil {
		t.Fatalf("ResetUnderReset: %v", err)
	}
	if !sawResetDuringFn {
		t.Error("reset should be asserted while fn runs")
	}
	if ft.resetAsserted {
		t.Error("reset should be released once ResetUnderReset returns")
	}
}
