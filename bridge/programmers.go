// Package bridge implements the L0 Transport (swd.Transport) over a
// USB-attached FTDI-style multi-protocol synchronous serial engine
// operated in bit-banging mode, the way swdhost.cpp/swddump.cpp drive an
// FT2232H/FT232H through libftdi. The mapping from a programmer's name
// to its VID/PID/interface is a small static table (§9 "Programmer
// table... a constant lookup, not an extensibility surface"), not a
// plugin registry.
package bridge

import "github.com/google/gousb"

// Config describes one programmer board's fixed wiring: which USB
// VID/PID/interface the FTDI chip enumerates as, and which of its GPIO
// lines carry SWCLK/SWDIO/SRST, since this bridge supports more than
// one board.
type Config struct {
	Name              string
	VID               gousb.ID
	PID               gousb.ID
	DefaultInterface  int
	SWCLKMask         byte
	SWDIOMask         byte
	SRSTMask          byte
}

// programmerTable is the static name->config lookup (§9). um232h and
// bus_blaster are the two boards original_source/swdhost.cpp supports.
var programmerTable = map[string]Config{
	"um232h": {
		Name:             "um232h",
		VID:              0x0403,
		PID:              0x6014,
		DefaultInterface: 0,
		SWCLKMask:        0x01,
		SWDIOMask:        0x02,
		SRSTMask:         0x04,
	},
	"bus_blaster": {
		Name:             "bus_blaster",
		VID:              0x0403,
		PID:              0x6010,
		DefaultInterface: 0,
		SWCLKMask:        0x01,
		SWDIOMask:        0x02,
		SRSTMask:         0x10,
	},
}

// LookupProgrammer resolves a programmer name to its Config, mirroring
// swdhost.cpp's lookup_programmer.
func LookupProgrammer(name string) (Config, bool) {
	cfg, ok := programmerTable[name]
	return cfg, ok
}
