package swd

import (
	"fmt"
	"time"
)

// Byte-per-clock convention used between this file and a Transport
// implementation (§6): the core treats the bridge as an opaque byte
// channel, so each bit of SWD line protocol is represented here as one
// byte sent to, or received from, Transport. Bit 0 of an outgoing byte
// is the SWDIO level to drive; bit 1 says whether the host is driving
// SWDIO that cycle (clear during turnaround/ACK/read so the target can
// drive the line). Bit 0 of an incoming byte is the sampled SWDIO level.
// Batching these per-clock bytes into real MPSSE opcodes is the bridge's
// job (bridge/mpsse.go), not this layer's — keeping protocol framing
// separate from wire encoding. The constants are
// exported (BitDriveHi etc., in transport.go) so an out-of-package
// Transport implementation can speak the same convention.
const (
	lineDriveHi    = BitDriveHi
	lineDriveLo    = BitDriveLo
	lineHostDrives = BitHostDrives
)

// Driver is the L1 SWD line driver (§4.1): it turns one SWD transaction
// into the clocked bit sequence the bridge transports, and parses the
// reply.
type Driver struct {
	t Transport
}

// NewDriver constructs the L1 line driver over an already-configured
// Transport.
func NewDriver(t Transport) *Driver {
	return &Driver{t: t}
}

// Initialize performs the line-reset sequence (§4.1, §6): drive SWDIO
// high for >=50 clocks, send the JTAG-to-SWD switch pattern, drive high
// for >=50 clocks again, emit >=2 idle low cycles, then read DP.IDCODE —
// the first transaction after a line reset must be that read.
func (d *Driver) Initialize() (uint32, error) {
	if err := d.lineResetSequence(); err != nil {
		return 0, Wrap("Driver.Initialize", err)
	}

	idcode, err := d.ReadDPRaw(dpIDCODE)
	if err != nil {
		return 0, Wrap("Driver.Initialize", err)
	}

	if idcode == 0 || idcode == 0xFFFFFFFF {
		return 0, Fail("Driver.Initialize", ErrNoTarget, fmt.Errorf("idcode=%#08x", idcode))
	}

	return idcode, nil
}

func (d *Driver) lineResetSequence() error {
	if err := d.clockHighFor(50); err != nil {
		return err
	}
	if err := d.clockBitsLSB(jtagToSWDSequence, 16); err != nil {
		return err
	}
	if err := d.clockHighFor(50); err != nil {
		return err
	}
	return d.clockLowFor(2)
}

func (d *Driver) clockHighFor(n int) error {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = lineDriveHi | lineHostDrives
	}
	return d.t.WriteBytes(buf)
}

func (d *Driver) clockLowFor(n int) error {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = lineDriveLo | lineHostDrives
	}
	return d.t.WriteBytes(buf)
}

func (d *Driver) clockBitsLSB(v uint32, n int) error {
	buf := make([]byte, n)
	for i := 0; i < n; i++ {
		bit := byte((v >> uint(i)) & 1)
		buf[i] = bit | lineHostDrives
	}
	return d.t.WriteBytes(buf)
}

// EnterReset asserts the target's physical system reset line (§4.1),
// distinct from the SWD line-reset sequence above.
func (d *Driver) EnterReset() error {
	return Wrap("Driver.EnterReset", d.t.AssertReset())
}

// LeaveReset deasserts the target's physical system reset line.
func (d *Driver) LeaveReset() error {
	return Wrap("Driver.LeaveReset", d.t.ReleaseReset())
}

// ResetTarget pulses the target's physical reset line once: assert,
// wait settle for it to take effect, release. Unlike EnterReset/
// LeaveReset it does not stay asserted across the caller's own
// bring-up steps.
func (d *Driver) ResetTarget(settle time.Duration) error {
	if err := d.EnterReset(); err != nil {
		return Wrap("Driver.ResetTarget", err)
	}
	time.Sleep(settle)
	return Wrap("Driver.ResetTarget", d.LeaveReset())
}

// transaction is the (APnDP, RnW, A[3:2], data?) tuple of §4.1.
type transaction struct {
	apndp bool
	rnw   bool
	a23   uint8 // A[3:2], i.e. bits 1:0 hold A2 then A3
}

func headerByte(tx transaction) byte {
	apndp := boolBit(tx.apndp)
	rnw := boolBit(tx.rnw)
	a2 := tx.a23 & 1
	a3 := (tx.a23 >> 1) & 1

	parityBits := uint32(apndp) | uint32(rnw)<<1 | uint32(a2)<<2 | uint32(a3)<<3
	parity := boolBit(evenParity(parityBits, 4))

	var h byte
	h |= 1 << 0 // Start
	h |= apndp << 1
	h |= rnw << 2
	h |= a2 << 3
	h |= a3 << 4
	h |= parity << 5
	h |= 0 << 6 // Stop
	h |= 1 << 7 // Park
	return h
}

func boolBit(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// ackResult classifies the 3-bit ACK field (§4.1).
type ackResult int

const (
	ackResultOK ackResult = iota
	ackResultWait
	ackResultFault
	ackResultNoTarget
)

func classifyAck(bits uint32) ackResult {
	switch bits {
	case ackOK:
		return ackResultOK
	case ackWAIT:
		return ackResultWait
	case ackFAULT:
		return ackResultFault
	default:
		return ackResultNoTarget
	}
}

// doTransaction runs one SWD transaction (§4.1, steps 1-5) and, for a
// read, returns the 32-bit data phase. On OK it also emits idle clocks
// after a write. ACK handling beyond a single attempt (WAIT retry,
// FAULT recovery) is the DAP engine's job (§4.2); this layer reports the
// raw outcome.
func (d *Driver) doTransaction(tx transaction, writeData uint32) (uint32, ackResult, error) {
	header := headerByte(tx)

	// header (8 bits, LSB-first) + 1 turnaround.
	frame := make([]byte, 0, 46)
	for i := 0; i < 8; i++ {
		bit := (header >> uint(i)) & 1
		frame = append(frame, bit|lineHostDrives)
	}
	frame = append(frame, 0) // turnaround: release the line

	if err := d.t.WriteBytes(frame); err != nil {
		return 0, 0, Wrap("Driver.doTransaction", err)
	}

	ackBytes, err := d.t.ReadBytes(3)
	if err != nil {
		return 0, 0, Wrap("Driver.doTransaction", err)
	}
	var ackBits uint32
	for i, b := range ackBytes {
		ackBits |= uint32(b&1) << uint(i)
	}
	ack := classifyAck(ackBits)

	if ack != ackResultOK {
		// 1 turnaround bit to let the host reclaim the line; no data phase.
		if _, err := d.t.ReadBytes(1); err != nil {
			return 0, 0, Wrap("Driver.doTransaction", err)
		}
		return 0, ack, nil
	}

	if tx.rnw {
		dataBytes, err := d.t.ReadBytes(33) // 32 data bits + 1 parity
		if err != nil {
			return 0, 0, Wrap("Driver.doTransaction", err)
		}
		var data uint32
		for i := 0; i < 32; i++ {
			data |= uint32(dataBytes[i]&1) << uint(i)
		}
		parityBit := dataBytes[32] & 1

		if _, err := d.t.ReadBytes(1); err != nil { // turnaround, host reclaims
			return 0, 0, Wrap("Driver.doTransaction", err)
		}

		wantParity := boolBit(evenParity(data, 32))
		if parityBit != wantParity {
			return 0, 0, Fail("Driver.doTransaction", ErrProtocolParity, fmt.Errorf("data=%#08x", data))
		}

		return data, ackResultOK, nil
	}

	// write: 1 turnaround (host reclaims), then 32 data bits + parity.
	writeFrame := make([]byte, 0, 34)
	writeFrame = append(writeFrame, lineDriveLo|lineHostDrives) // reclaim and start driving
	for i := 0; i < 32; i++ {
		bit := byte((writeData >> uint(i)) & 1)
		writeFrame = append(writeFrame, bit|lineHostDrives)
	}
	parity := boolBit(evenParity(writeData, 32))
	writeFrame = append(writeFrame, parity|lineHostDrives)

	if err := d.t.WriteBytes(writeFrame); err != nil {
		return 0, 0, Wrap("Driver.doTransaction", err)
	}

	// §4.1 idle cycles: at least eight low clocks after every write so
	// the DP can latch it before the next header.
	if err := d.clockLowFor(8); err != nil {
		return 0, 0, Wrap("Driver.doTransaction", err)
	}

	return 0, ackResultOK, nil
}

// ReadDPRaw issues a single DP read with no WAIT retry, used only for
// the post-line-reset IDCODE read (§4.1) where no DAP engine exists
// yet to manage SELECT/retry.
func (d *Driver) ReadDPRaw(a23 uint8) (uint32, error) {
	data, ack, err := d.doTransaction(transaction{apndp: false, rnw: true, a23: a23}, 0)
	if err != nil {
		return 0, err
	}
	if ack != ackResultOK {
		return 0, Fail("Driver.ReadDPRaw", ErrProtocolFault, fmt.Errorf("ack=%d", ack))
	}
	return data, nil
}
