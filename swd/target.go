package swd

import (
	"fmt"

	"github.com/boljen/go-bitmap"
)

// TargetState is the state machine of §3.
type TargetState int

const (
	TargetUnknown TargetState = iota
	TargetRunning
	TargetHalted
	TargetLockedOut
)

func (s TargetState) String() string {
	switch s {
	case TargetRunning:
		return "running"
	case TargetHalted:
		return "halted"
	case TargetLockedOut:
		return "locked-out"
	default:
		return "unknown"
	}
}

// maxPollRetries bounds DHCSR/S_HALT/S_REGRDY polling (§4.4): "the
// reference polls with up to 100 iterations of retry".
const maxPollRetries = 100

// Target is the L4 Cortex-M debug control block driver (§4.4): halt,
// resume, reset-halt, register file access, breakpoint-cause decoding.
// It has no single-step operation.
type Target struct {
	mem   *MemAP
	state TargetState
}

// NewTarget constructs the L4 driver over an initialized L3 engine.
func NewTarget(mem *MemAP) *Target {
	return &Target{mem: mem, state: TargetUnknown}
}

// State reports the target's last-known state machine value.
func (t *Target) State() TargetState {
	return t.state
}

// Initialize asserts C_DEBUGEN (enabling debug without halting) and
// clears C_MASKINTS (§4.4).
func (t *Target) Initialize() error {
	value := uint32(dhcsrDBGKEY | dhcsrC_DEBUGEN)
	if err := t.mem.WriteWord(regDHCSR, value); err != nil {
		return Wrap("Target.Initialize", err)
	}

	dhcsr, err := t.mem.ReadWord(regDHCSR)
	if err != nil {
		return Wrap("Target.Initialize", err)
	}

	if dhcsr&dhcsrS_HALT != 0 {
		t.state = TargetHalted
	} else {
		t.state = TargetRunning
	}
	return nil
}

// Halt writes DHCSR with C_DEBUGEN|C_HALT set, then polls S_HALT (§4.4).
func (t *Target) Halt() error {
	value := uint32(dhcsrDBGKEY | dhcsrC_DEBUGEN | dhcsrC_HALT)
	if err := t.mem.WriteWord(regDHCSR, value); err != nil {
		return Wrap("Target.Halt", err)
	}

	err := Retry(maxPollRetries, RetryBackoff, func(attempt int) (bool, error) {
		dhcsr, err := t.mem.ReadWord(regDHCSR)
		if err != nil {
			return true, err
		}
		if dhcsr&dhcsrS_HALT != 0 {
			return true, nil
		}
		return false, Fail("Target.Halt", ErrTargetTimeout, nil)
	})
	if err != nil {
		return Wrap("Target.Halt", err)
	}

	t.state = TargetHalted
	return nil
}

// Resume writes DHCSR with C_HALT cleared and does not poll — the core
// may halt again immediately on a pending breakpoint (§4.4).
func (t *Target) Resume() error {
	value := uint32(dhcsrDBGKEY | dhcsrC_DEBUGEN)
	if err := t.mem.WriteWord(regDHCSR, value); err != nil {
		return Wrap("Target.Resume", err)
	}
	t.state = TargetRunning
	return nil
}

// ResetHalt sets DEMCR.VC_CORERESET, issues AIRCR.SYSRESETREQ, and waits
// for DHCSR.S_HALT (§4.4 "System reset").
func (t *Target) ResetHalt() error {
	if err := t.mem.WriteWord(regDEMCR, demcrVC_CORERESET); err != nil {
		return Wrap("Target.ResetHalt", err)
	}

	value := uint32(aircrVECTKEY | aircrSYSRESETREQ)
	if err := t.mem.WriteWord(regAIRCR, value); err != nil {
		return Wrap("Target.ResetHalt", err)
	}

	err := Retry(maxPollRetries, RetryBackoff, func(attempt int) (bool, error) {
		dhcsr, err := t.mem.ReadWord(regDHCSR)
		if err != nil {
			return false, err // the target may be mid-reset; keep polling
		}
		if dhcsr&dhcsrS_HALT != 0 {
			return true, nil
		}
		return false, Fail("Target.ResetHalt", ErrTargetTimeout, nil)
	})
	if err != nil {
		return Wrap("Target.ResetHalt", err)
	}

	t.state = TargetHalted
	return nil
}

// requireHalted enforces §3's invariant: core registers may only be
// accessed while halted.
func (t *Target) requireHalted() error {
	if t.state != TargetHalted {
		return Fail("Target.requireHalted", ErrTargetState, fmt.Errorf("target is %s, not halted", t.state))
	}
	return nil
}

// ReadRegister reads core register regsel via DCRSR/DCRDR (§4.4).
func (t *Target) ReadRegister(regsel uint32) (uint32, error) {
	if err := t.requireHalted(); err != nil {
		return 0, err
	}

	dcrsr := regsel // REGWnR=0
	if err := t.mem.WriteWord(regDCRSR, dcrsr); err != nil {
		return 0, Wrap("Target.ReadRegister", err)
	}

	if err := t.waitRegReady(); err != nil {
		return 0, Wrap("Target.ReadRegister", err)
	}

	v, err := t.mem.ReadWord(regDCRDR)
	if err != nil {
		return 0, Wrap("Target.ReadRegister", err)
	}
	return v, nil
}

// WriteRegister writes core register regsel via DCRDR/DCRSR (§4.4).
func (t *Target) WriteRegister(regsel uint32, value uint32) error {
	if err := t.requireHalted(); err != nil {
		return err
	}

	if err := t.mem.WriteWord(regDCRDR, value); err != nil {
		return Wrap("Target.WriteRegister", err)
	}

	dcrsr := regsel | dcrsrREGWnR
	if err := t.mem.WriteWord(regDCRSR, dcrsr); err != nil {
		return Wrap("Target.WriteRegister", err)
	}

	if err := t.waitRegReady(); err != nil {
		return Wrap("Target.WriteRegister", err)
	}
	return nil
}

func (t *Target) waitRegReady() error {
	return Retry(maxPollRetries, RetryBackoff, func(attempt int) (bool, error) {
		dhcsr, err := t.mem.ReadWord(regDHCSR)
		if err != nil {
			return true, err
		}
		if dhcsr&dhcsrS_REGRDY != 0 {
			return true, nil
		}
		return false, Fail("Target.waitRegReady", ErrTargetTimeout, nil)
	})
}

// ReadPC / WritePC are ReadRegister/WriteRegister convenience wrappers;
// PC is always 16-bit aligned and the debugger never advances it by 1
// (§3), enforced by WritePC's caller (semihost.go advances by 2).
func (t *Target) ReadPC() (Addr, error) {
	v, err := t.ReadRegister(regPC)
	return Addr(v), err
}

func (t *Target) WritePC(pc Addr) error {
	return t.WriteRegister(regPC, uint32(pc))
}

// HaltCause is a decoded DFSR (§4.4 "Halt-cause decoding"), one bool
// per cause. Target.HaltCause collects the bits in a compact bitmap
// before filling these fields.
type HaltCause struct {
	Halted   bool
	Breakpoint bool
	Watchpoint bool
	VectorCatch bool
	External bool
	raw      uint32
}

func (t *Target) HaltCause() (HaltCause, error) {
	dfsr, err := t.mem.ReadWord(regDFSR)
	if err != nil {
		return HaltCause{}, Wrap("Target.HaltCause", err)
	}

	bits := bitmap.New(5)
	if dfsr&dfsrHALTED != 0 {
		bits.Set(0, true)
	}
	if dfsr&dfsrBKPT != 0 {
		bits.Set(1, true)
	}
	if dfsr&dfsrDWTTRAP != 0 {
		bits.Set(2, true)
	}
	if dfsr&dfsrVCATCH != 0 {
		bits.Set(3, true)
	}
	if dfsr&dfsrEXTERNAL != 0 {
		bits.Set(4, true)
	}

	return HaltCause{
		Halted:      bits.Get(0),
		Breakpoint:  bits.Get(1),
		Watchpoint:  bits.Get(2),
		VectorCatch: bits.Get(3),
		External:    bits.Get(4),
		raw:         dfsr & dfsrReasonMask,
	}, nil
}

// Raw returns the masked DFSR value the cause was decoded from, for
// diagnostics (§7 "No silent behavior").
func (c HaltCause) Raw() uint32 {
	return c.raw
}

// ReadWord/WriteWord/ReadHalfword/WriteHalfword/ReadByte/WriteByte
// delegate to §4.3's MemAP (§4.4 "Memory operations").
func (t *Target) ReadWord(addr Addr) (uint32, error)  { return t.mem.ReadWord(addr) }
func (t *Target) WriteWord(addr Addr, v uint32) error { return t.mem.WriteWord(addr, v) }

func (t *Target) ReadHalfword(addr Addr) (uint16, error)  { return t.mem.ReadHalfword(addr) }
func (t *Target) WriteHalfword(addr Addr, v uint16) error { return t.mem.WriteHalfword(addr, v) }

func (t *Target) ReadByte(addr Addr) (byte, error)  { return t.mem.ReadByte(addr) }
func (t *Target) WriteByte(addr Addr, v byte) error { return t.mem.WriteByte(addr, v) }

// ReadBlock issues one CSW write and one TAR write, then streams DRW
// reads, re-writing TAR at each 1KiB boundary (§4.4).
func (t *Target) ReadBlock(addr Addr, count int, buf []uint32) error {
	return t.mem.ReadBlock(addr, count, buf)
}
