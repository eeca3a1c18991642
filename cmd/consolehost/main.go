// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// consolehost connects to a target over SWD, resets it under reset, and
// services its semihosting console until the target calls SYS_EXIT or
// the process is interrupted. It mirrors original_source/swdhost.cpp's
// host_main/handle_halt loop.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gousb"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/niurenyige/swddude/bridge"
	"github.com/niurenyige/swddude/console"
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
	logger.SetOutput(os.Stdout)

	if debug {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
}

func setUpSignalHandler() <-chan os.Signal {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	return signals
}

func main() {
	flagDebug := flag.Bool("debug", false, "enable verbose protocol logging")
	flagProgrammer := flag.String("programmer", "um232h", "programmer board (um232h, bus_blaster)")
	flagVID := flag.Uint("vid", 0, "override programmer USB vendor id")
	flagPID := flag.Uint("pid", 0, "override programmer USB product id")
	flagInterface := flag.Int("interface", -1, "override programmer USB interface number")
	flagSpeed := flag.Int("speed", 4000000, "SWCLK frequency in Hz")
	flag.Parse()

	initLogger(*flagDebug)
	swd.SetLogger(logger)

	logger.Info("swddude consolehost")

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

	sess, err := swd.OpenUnderReset(mpsse, 10*time.Millisecond)
	if err != nil {
		logger.Fatalf("bringing up target: %v", err)
	}
	logger.Infof("target IDCODE=%#08x", sess.IDCode())

	// Target.ResetHalt leaves the core halted on the reset vector
	// catch, not on a semihosting breakpoint; resume once here so the
	// poll loop below has something to wait on.
	if err := sess.Target.Resume(); err != nil {
		logger.Fatalf("resume: %v", err)
	}

	out := console.NewWriter(os.Stdout)
	semi := swd.NewSemihost(sess.Target, out)

	signals := setUpSignalHandler()
	done := make(chan error, 1)
	go func() { done <- semi.Loop() }()

	select {
	case err := <-done:
		if exitErr, ok := err.(*swd.ExitError); ok {
			logger.Infof("target exited with code %d", exitErr.Code)
			os.Exit(exitErr.Code)
		}
		logger.Errorf("semihosting loop stopped: %s", swd.Chain(err))
		os.Exit(1)
	case <-signals:
		logger.Info("interrupted")
		os.Exit(130)
	}
}
