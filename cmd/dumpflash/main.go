// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// dumpflash halts a target, unmaps its boot ROM so flash appears at
// address zero, and dumps the first N words of memory to stdout.
// Mirrors original_source/swddump.cpp's dump_flash.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/gousb"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/niurenyige/swddude/bridge"
	"github.com/niurenyige/swddude/swd"
)

var logger *logrus.Logger

func initLogger(debug bool) {
	formatter := &prefixed.TextFormatter{
		DisableColors:   false,
		TimestampFormat: "15:04:05",
		FullTimestamp:   true,
		ForceFormatting: true,
	}

	logger = logrus.New()
	logger.SetFormatter(formatter)
	logger.SetOutput(os.Stderr)

	if debug {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
}

// SYSCON's SYSMEMREMAP register and the value that remaps user flash to
// address zero, which main writes the way swddump.cpp's
// unmap_boot_sector does on NXP LPC-family parts.
const (
	syscSysMemRemap           = 0x40048000
	syscSysMemRemapUserFlash  = 2
)

func main() {
	flagDebug := flag.Bool("debug", false, "enable verbose protocol logging")
	flagCount := flag.Int("count", 32, "number of words to dump")
	flagProgrammer := flag.String("programmer", "um232h", "programmer board (um232h, bus_blaster)")
	flagVID := flag.Uint("vid", 0, "override programmer USB vendor id")
	flagPID := flag.Uint("pid", 0, "override programmer USB product id")
	flagInterface := flag.Int("interface", -1, "override programmer USB interface number")
	flagSpeed := flag.Int("speed", 4000000, "SWCLK frequency in Hz")
	flag.Parse()

	initLogger(*flagDebug)
	swd.SetLogger(logger)

	cfg, ok := bridge.LookupProgrammer(*flagProgrammer)
	if !ok {
		logger.Fatalf("unknown programmer %q", *flagProgrammer)
	}
	if *flagVID != 0 {
		cfg.VID = gousb.ID(*flagVID)
	}
	if *flagPID != 0 {
		cfg.PID = gousb.ID(*flagPID)
	}
	if *flagInterface >= 0 {
		cfg.DefaultInterface = *flagInterface
	}

	mpsse, err := bridge.OpenConfig(cfg)
	if err != nil {
		logger.Fatalf("opening programmer: %v", err)
	}
	defer mpsse.Close()

	if err := mpsse.Configure(*flagSpeed); err != nil {
		logger.Fatalf("configuring SWCLK rate: %v", err)
	}

	sess, err := swd.OpenWithReset(mpsse, 100*time.Millisecond)
	if err != nil {
		logger.Fatalf("bringing up target: %v", err)
	}
	logger.Infof("target IDCODE=%#08x", sess.IDCode())

	if err := sess.Target.Halt(); err != nil {
		logger.Fatalf("halt: %v", err)
	}

	if err := sess.Target.WriteWord(syscSysMemRemap, syscSysMemRemapUserFlash); err != nil {
		logger.Fatalf("unmapping boot sector: %v", err)
	}

	words := make([]uint32, *flagCount)
	if err := sess.Target.ReadBlock(0, *flagCount, words); err != nil {
		logger.Fatalf("reading flash: %v", err)
	}

	for i, w := range words {
		fmt.Printf("%08x: %08x\n", i*4, w)
	}
}
