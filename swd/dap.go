package swd

import (
	"github.com/boljen/go-bitmap"
)

// maxWaitRetries bounds the WAIT-ACK retry loop (§4.1): "the reference
// uses an outer retry loop with 100 attempts".
const maxWaitRetries = 100

// DAPState is the per-connection record of §3: current SELECT shadow
// (selectValid==false means "unknown", e.g. at reset or after a line
// reset) and whether a sticky DP fault has been seen since the last
// ResetState. It does not record the kind of the last transaction:
// ReadAP always drains through RDBUFF, so nothing is left posted
// between calls.
type DAPState struct {
	selectValid bool
	selectValue uint32
	stickyFault bool
}

// DAP is the L2 Debug/Access Port engine (§4.2): typed DP/AP register
// access on top of the L1 line driver, hiding bank selection and
// posted-read timing.
type DAP struct {
	drv   *Driver
	state DAPState
	epoch int

	// stickyBits tracks which sticky CTRL/STAT bits recoverFault has
	// observed since the last ResetState, kept as a compact bitmap rather
	// than separate bool fields.
	stickyBits bitmap.Bitmap
}

// Epoch increments on every ResetState; MemAP uses it to invalidate its
// CSW shadow (§4.3 "CSW shadow... invalidated on DAP reset_state()").
func (dap *DAP) Epoch() int {
	return dap.epoch
}

// NewDAP constructs the L2 engine over an initialized L1 driver.
func NewDAP(drv *Driver) *DAP {
	return &DAP{
		drv:        drv,
		stickyBits: bitmap.New(8),
	}
}

// ReadDP reads a DP register, writing SELECT first if reg lives in a
// different DPBANKSEL than the current shadow (§4.2).
func (dap *DAP) ReadDP(reg uint8) (uint32, error) {
	if err := dap.ensureDPBank(reg); err != nil {
		return 0, Wrap("DAP.ReadDP", err)
	}
	v, err := dap.transact(transaction{apndp: false, rnw: true, a23: (reg >> 2) & 0x3})
	if err != nil {
		return 0, Wrap("DAP.ReadDP", err)
	}
	return v, nil
}

// WriteDP writes a DP register, writing SELECT first if needed.
func (dap *DAP) WriteDP(reg uint8, value uint32) error {
	if err := dap.ensureDPBank(reg); err != nil {
		return Wrap("DAP.WriteDP", err)
	}
	if _, err := dap.transactWrite(transaction{apndp: false, rnw: false, a23: (reg >> 2) & 0x3}, value); err != nil {
		return Wrap("DAP.WriteDP", err)
	}
	return nil
}

// DP registers addressed by A[3:2]=2 (SELECT) carry no DPBANKSEL
// requirement of their own; IDCODE/ABORT (A=0) and SELECT/RDBUFF (A=2,3)
// are bank-independent, only CTRL/STAT (A=1) is banked via
// SELECT.DPBANKSEL in DPv1+. This implementation targets the common
// ADIv5 DPv0/DPv1 case used by Cortex-M0/M3/M4 and always selects bank 0
// for CTRL/STAT; a DPv2 target with non-zero CTRL/STAT banks in use is
// out of scope here.
func (dap *DAP) ensureDPBank(reg uint8) error {
	if reg != dpCTRLSTAT {
		return nil
	}
	return dap.writeSelectIfStale(0, 0)
}

// ReadAP reads an AP register: regOffset splits into APBANKSEL (bits
// 7:4) and A[3:2] (bits 3:2); SELECT is written first if the active
// (AP,bank) shadow is stale (§4.2). The result auto-drains through
// RDBUFF so the caller sees the naturally-addressed value rather than
// the posted value from the previous read (§4.2 "Auto-drain").
func (dap *DAP) ReadAP(apIndex uint8, regOffset uint8) (uint32, error) {
	if err := dap.writeSelectIfStale(apIndex, regOffset&0xF0); err != nil {
		return 0, Wrap("DAP.ReadAP", err)
	}

	if _, err := dap.transact(transaction{apndp: true, rnw: true, a23: (regOffset >> 2) & 0x3}); err != nil {
		return 0, Wrap("DAP.ReadAP", err)
	}

	v, err := dap.ReadDP(dpRDBUFF)
	if err != nil {
		return 0, Wrap("DAP.ReadAP", err)
	}
	return v, nil
}

// WriteAP writes an AP register, writing SELECT first if stale.
func (dap *DAP) WriteAP(apIndex uint8, regOffset uint8, value uint32) error {
	if err := dap.writeSelectIfStale(apIndex, regOffset&0xF0); err != nil {
		return Wrap("DAP.WriteAP", err)
	}
	if _, err := dap.transactWrite(transaction{apndp: true, rnw: false, a23: (regOffset >> 2) & 0x3}, value); err != nil {
		return Wrap("DAP.WriteAP", err)
	}
	return nil
}

func (dap *DAP) writeSelectIfStale(apIndex uint8, apBank uint8) error {
	want := uint32(apIndex)<<selectAPSELShift | uint32(apBank&0xF0)

	if dap.state.selectValid && dap.state.selectValue == want {
		return nil
	}

	if _, err := dap.transactWrite(transaction{apndp: false, rnw: false, a23: (dpSELECT >> 2) & 0x3}, want); err != nil {
		return err
	}

	dap.state.selectValid = true
	dap.state.selectValue = want
	return nil
}

// transact performs a read transaction with WAIT retry (§4.1 ACK
// policy) and FAULT classification/recovery (§4.2 "Fault recovery").
func (dap *DAP) transact(tx transaction) (uint32, error) {
	var result uint32

	err := Retry(maxWaitRetries, nil, func(attempt int) (bool, error) {
		data, ack, err := dap.drv.doTransaction(tx, 0)
		if err != nil {
			return true, err
		}

		switch ack {
		case ackResultOK:
			result = data
			return true, nil
		case ackResultWait:
			return false, Fail("DAP.transact", ErrProtocolAckWait, nil)
		case ackResultFault:
			return true, dap.recoverFault()
		default:
			return true, Fail("DAP.transact", ErrNoTarget, nil)
		}
	})

	return result, err
}

func (dap *DAP) transactWrite(tx transaction, value uint32) (uint32, error) {
	var result uint32

	err := Retry(maxWaitRetries, nil, func(attempt int) (bool, error) {
		data, ack, err := dap.drv.doTransaction(tx, value)
		if err != nil {
			return true, err
		}

		switch ack {
		case ackResultOK:
			result = data
			return true, nil
		case ackResultWait:
			return false, Fail("DAP.transactWrite", ErrProtocolAckWait, nil)
		case ackResultFault:
			return true, dap.recoverFault()
		default:
			return true, Fail("DAP.transactWrite", ErrNoTarget, nil)
		}
	})

	return result, err
}

// recoverFault reads CTRL/STAT to classify the fault, writes ABORT with
// the matching clear bits, and surfaces protocol-fault — the SELECT
// shadow survives (only a line reset invalidates it), but the sticky
// bits must be cleared before the next normal transaction (§3, §4.2).
func (dap *DAP) recoverFault() error {
	status, err := dap.ReadDP(dpCTRLSTAT)
	if err != nil {
		return Wrap("DAP.recoverFault", err)
	}

	var abort uint32
	if status&ctrlstatSTICKYERR != 0 {
		abort |= abortSTKERRCLR
		dap.stickyBits.Set(0, true)
	}
	if status&ctrlstatSTICKYCMP != 0 {
		abort |= abortSTKCMPCLR
		dap.stickyBits.Set(1, true)
	}
	if status&ctrlstatSTICKYORUN != 0 {
		abort |= abortORUNERRCLR
		dap.stickyBits.Set(2, true)
	}
	if status&ctrlstatWDATAERR != 0 {
		abort |= abortWDERRCLR
		dap.stickyBits.Set(3, true)
	}

	if abort != 0 {
		if _, err := dap.transactWrite(transaction{apndp: false, rnw: false, a23: (dpABORT >> 2) & 0x3}, abort); err != nil {
			return Wrap("DAP.recoverFault", err)
		}
	}

	stickyErr, stickyCmp, stickyOrun, wdataErr := dap.StickyFaultBits()
	logger.Warnf("DAP.recoverFault: ctrlstat=%#08x sticky_err=%t sticky_cmp=%t sticky_orun=%t wdata_err=%t",
		status, stickyErr, stickyCmp, stickyOrun, wdataErr)

	dap.state.stickyFault = true
	return Fail("DAP.recoverFault", ErrProtocolFault, nil)
}

// StickyFaultBits reports which DP sticky fault bits recoverFault has
// observed and cleared since the last ResetState, in CTRL/STAT order
// (STICKYERR, STICKYCMP, STICKYORUN, WDATAERR).
func (dap *DAP) StickyFaultBits() (stickyErr, stickyCmp, stickyOrun, wdataErr bool) {
	return dap.stickyBits.Get(0), dap.stickyBits.Get(1), dap.stickyBits.Get(2), dap.stickyBits.Get(3)
}

// ResetState zeroes the SELECT shadow, reads IDCODE (discarding the
// value), clears any sticky error via ABORT, then powers up the debug
// and system domains and spins until the ACK bits are set (§4.2).
func (dap *DAP) ResetState() error {
	dap.state = DAPState{}
	dap.stickyBits = bitmap.New(8)
	dap.epoch++

	if _, err := dap.ReadDP(dpIDCODE); err != nil {
		// a fault here is expected if a sticky bit survived a previous
		// session; recoverFault already issued the ABORT clear.
		if se, ok := err.(*Error); !ok || se.Kind != ErrProtocolFault {
			return Wrap("DAP.ResetState", err)
		}
	}

	abort := uint32(abortSTKERRCLR | abortSTKCMPCLR | abortORUNERRCLR | abortWDERRCLR)
	if err := dap.WriteDP(dpABORT, abort); err != nil {
		return Wrap("DAP.ResetState", err)
	}

	want := uint32(ctrlstatCDBGPWRUPREQ | ctrlstatCSYSPWRUPREQ)
	if err := dap.WriteDP(dpCTRLSTAT, want); err != nil {
		return Wrap("DAP.ResetState", err)
	}

	err := Retry(maxWaitRetries, RetryBackoff, func(attempt int) (bool, error) {
		status, err := dap.ReadDP(dpCTRLSTAT)
		if err != nil {
			return true, err
		}
		ackMask := uint32(ctrlstatCDBGPWRUPACK | ctrlstatCSYSPWRUPACK)
		if status&ackMask == ackMask {
			return true, nil
		}
		return false, Fail("DAP.ResetState", ErrTargetTimeout, nil)
	})
	if err != nil {
		return Wrap("DAP.ResetState", err)
	}

	dap.state.stickyFault = false
	return nil
}
