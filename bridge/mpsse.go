package bridge

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/google/gousb"

	"github.com/niurenyige/swddude/swd"
)

// MPSSE opcodes used in bit-bang GPIO mode (FTDI AN135). Only the subset
// this driver needs: toggling SWCLK/SWDIO/SRST as GPIO and sampling
// SWDIO back, plus the clock-divisor setup done once at Configure.
const (
	mpsseSetDataBitsLow  = 0x80
	mpsseGetDataBitsLow  = 0x81
	mpsseDisableClkDiv5  = 0x8A
	mpsseDisableLoopback = 0x85
	mpsseSetClockDivisor = 0x86
)

// mpsseBaseClockHz is the FT232H/FT2232H master clock once the /5 divider
// is disabled (AN135 "60MHz mode").
const mpsseBaseClockHz = 60000000

// ftdiBulkOutEP/ftdiBulkInEP are the standard FTDI channel-A bulk
// endpoint numbers used by both boards in programmerTable (um232h and
// bus_blaster are both channel-A-only FT232H/FT2232H parts).
const (
	ftdiBulkOutEP = 2
	ftdiBulkInEP  = 1
)

// MPSSE drives an FTDI MPSSE-capable chip's GPIO pins in bit-bang mode
// to implement swd.Transport (§6, L0), the way swdhost.cpp drives the
// same chip through libftdi's bitbang helpers. It turns the per-clock
// byte stream L1 (swd.Driver) speaks into batched MPSSE command buffers,
// so a single swd.Transport.WriteBytes/ReadBytes call becomes one bulk
// USB transfer instead of one per bit.
type MPSSE struct {
	cfg Config

	ctx *gousb.Context
	dev *gousb.Device

	usbCfg *gousb.Config
	iface  *gousb.Interface

	out *gousb.OutEndpoint
	in  *gousb.InEndpoint

	srstHigh bool // true = not in reset
}

// Open finds and claims the USB device for the named programmer and
// places its MPSSE engine into bit-bang GPIO mode.
func Open(programmer string) (*MPSSE, error) {
	cfg, ok := LookupProgrammer(programmer)
	if !ok {
		return nil, fmt.Errorf("bridge: unknown programmer %q", programmer)
	}
	return OpenConfig(cfg)
}

// OpenConfig is Open with an explicit Config, for callers that override
// VID/PID/interface from the command line instead of the static table.
func OpenConfig(cfg Config) (*MPSSE, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(cfg.VID, cfg.PID)
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("bridge: open %04x:%04x: %w", cfg.VID, cfg.PID, err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("bridge: no device %04x:%04x attached", cfg.VID, cfg.PID)
	}

	if err := dev.SetAutoDetach(true); err != nil {
		log.Debugf("bridge: SetAutoDetach: %v", err)
	}

	usbCfg, err := dev.Config(1)
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("bridge: claim config 1: %w", err)
	}

	iface, err := usbCfg.Interface(cfg.DefaultInterface, 0)
	if err != nil {
		usbCfg.Close()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("bridge: claim interface %d: %w", cfg.DefaultInterface, err)
	}

	out, err := iface.OutEndpoint(ftdiBulkOutEP)
	if err != nil {
		iface.Close()
		usbCfg.Close()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("bridge: open out endpoint: %w", err)
	}

	in, err := iface.InEndpoint(ftdiBulkInEP)
	if err != nil {
		iface.Close()
		usbCfg.Close()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("bridge: open in endpoint: %w", err)
	}

	m := &MPSSE{
		cfg:      cfg,
		ctx:      ctx,
		dev:      dev,
		usbCfg:   usbCfg,
		iface:    iface,
		out:      out,
		in:       in,
		srstHigh: true,
	}

	if err := m.initMPSSE(); err != nil {
		m.Close()
		return nil, err
	}

	return m, nil
}

// initMPSSE disables the /5 clock divider and internal loopback, the
// one-time setup AN135 requires before MPSSE commands behave as bit-bang
// GPIO at the rates Configure will ask for.
func (m *MPSSE) initMPSSE() error {
	return m.send([]byte{mpsseDisableClkDiv5, mpsseDisableLoopback})
}

// Close releases the USB resources this Transport holds. Safe to call
// on a partially-constructed MPSSE (as OpenConfig does on its error
// paths).
func (m *MPSSE) Close() error {
	var firstErr error
	if m.iface != nil {
		m.iface.Close()
	}
	if m.usbCfg != nil {
		if err := m.usbCfg.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if m.dev != nil {
		if err := m.dev.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if m.ctx != nil {
		if err := m.ctx.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Configure sets the MPSSE clock divisor for the requested SWCLK
// frequency (AN135, 60MHz base clock, /5 divider disabled):
// clockHz = 60MHz / ((1+div)*2).
func (m *MPSSE) Configure(clockHz int) error {
	if clockHz <= 0 {
		return errors.New("bridge: clockHz must be positive")
	}
	div := mpsseBaseClockHz/(2*clockHz) - 1
	if div < 0 {
		div = 0
	}
	if div > 0xFFFF {
		div = 0xFFFF
	}
	return m.send([]byte{mpsseSetClockDivisor, byte(div & 0xFF), byte(div >> 8)})
}

// gpioState returns the (value, direction) pair for one bit-bang cycle,
// given whether the host is driving SWDIO this cycle and, if so, the
// level to drive. SWCLK and SRST are always outputs; SWDIO's direction
// tracks BitHostDrives from line.go's per-clock convention.
func (m *MPSSE) gpioState(hostDrivesSWDIO, swdioHi, swclkHi bool) (value, direction byte) {
	direction = m.cfg.SWCLKMask | m.cfg.SRSTMask
	if hostDrivesSWDIO {
		direction |= m.cfg.SWDIOMask
	}

	if m.srstHigh {
		value |= m.cfg.SRSTMask
	}
	if swclkHi {
		value |= m.cfg.SWCLKMask
	}
	if hostDrivesSWDIO && swdioHi {
		value |= m.cfg.SWDIOMask
	}
	return value, direction
}

// WriteBytes clocks len(data) bits out, one per element of data using
// line.go's per-clock convention (bit 0: level to drive, bit 1: whether
// the host drives SWDIO that cycle). Cycles where the host doesn't drive
// still toggle SWCLK, tri-stating SWDIO so the target can.
func (m *MPSSE) WriteBytes(data []byte) error {
	cmd := make([]byte, 0, len(data)*4)
	for _, b := range data {
		hostDrives := b&swd.BitHostDrives != 0
		hi := b&swd.BitDriveHi != 0

		valLo, dir := m.gpioState(hostDrives, hi, false)
		valHi, _ := m.gpioState(hostDrives, hi, true)

		cmd = append(cmd, mpsseSetDataBitsLow, valLo, dir)
		cmd = append(cmd, mpsseSetDataBitsLow, valHi, dir)
	}
	return m.send(cmd)
}

// ReadBytes clocks n bits with SWDIO tri-stated (host not driving) and
// samples it on each cycle's rising edge, returning one byte per bit in
// line.go's convention (bit 0: sampled level).
func (m *MPSSE) ReadBytes(n int) ([]byte, error) {
	cmd := make([]byte, 0, n*4)
	for i := 0; i < n; i++ {
		valLo, dir := m.gpioState(false, false, false)
		valHi, _ := m.gpioState(false, false, true)

		cmd = append(cmd, mpsseSetDataBitsLow, valLo, dir)
		cmd = append(cmd, mpsseSetDataBitsLow, valHi, dir)
		cmd = append(cmd, mpsseGetDataBitsLow)
	}

	reply, err := m.sendAndRead(cmd, n)
	if err != nil {
		return nil, err
	}

	out := make([]byte, n)
	for i, raw := range reply {
		if raw&m.cfg.SWDIOMask != 0 {
			out[i] = swd.BitDriveHi
		} else {
			out[i] = swd.BitDriveLo
		}
	}
	return out, nil
}

// AssertReset drives SRST low, matching swdhost.cpp's enter_reset().
func (m *MPSSE) AssertReset() error {
	m.srstHigh = false
	val, dir := m.gpioState(false, false, false)
	return m.send([]byte{mpsseSetDataBitsLow, val, dir})
}

// ReleaseReset drives SRST high, matching swdhost.cpp's leave_reset().
func (m *MPSSE) ReleaseReset() error {
	m.srstHigh = true
	val, dir := m.gpioState(false, false, false)
	return m.send([]byte{mpsseSetDataBitsLow, val, dir})
}

func (m *MPSSE) send(cmd []byte) error {
	if len(cmd) == 0 {
		return nil
	}
	n, err := m.out.Write(cmd)
	if err != nil {
		return fmt.Errorf("bridge: usb write: %w", err)
	}
	log.Tracef("bridge: wrote %d/%d MPSSE command bytes", n, len(cmd))
	return nil
}

// sendAndRead writes cmd and reads back wantReplies bytes, one per
// mpsseGetDataBitsLow issued in cmd.
func (m *MPSSE) sendAndRead(cmd []byte, wantReplies int) ([]byte, error) {
	if err := m.send(cmd); err != nil {
		return nil, err
	}
	buf := make([]byte, wantReplies)
	n, err := m.in.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("bridge: usb read: %w", err)
	}
	if n != wantReplies {
		return nil, fmt.Errorf("bridge: short read, got %d want %d", n, wantReplies)
	}
	log.Tracef("bridge: read %d MPSSE reply bytes", n)
	return buf, nil
}
