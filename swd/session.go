package swd

import "time"

// Session is built bottom-up per §3 "Lifecycle": transport → L1 Driver
// → L2 DAP → L3 MemAP → L4 Target. It holds the four layers above the
// transport and is the single object a host tool needs.
type Session struct {
	Driver *Driver
	DAP    *DAP
	MemAP  *MemAP
	Target *Target

	idcode uint32
}

// Open drives the full bring-up sequence of §3: line reset + IDCODE
// read, DAP reset_state, target initialize. It does not halt the
// target — callers decide whether to call Session.Target.Halt() or
// Session.Target.ResetHalt() next, matching the divergent lifecycles of
// swdhost.cpp (halts implicitly via the semihosting loop) and
// swddump.cpp (explicit Halt before dumping).
func Open(t Transport) (*Session, error) {
	drv := NewDriver(t)

	idcode, err := drv.Initialize()
	if err != nil {
		return nil, Wrap("Open", err)
	}

	dap := NewDAP(drv)
	if err := dap.ResetState(); err != nil {
		return nil, Wrap("Open", err)
	}

	mem := NewMemAP(dap)
	target := NewTarget(mem)
	if err := target.Initialize(); err != nil {
		return nil, Wrap("Open", err)
	}

	return &Session{
		Driver: drv,
		DAP:    dap,
		MemAP:  mem,
		Target: target,
		idcode: idcode,
	}, nil
}

// IDCode returns the value read during line-reset bring-up.
func (s *Session) IDCode() uint32 {
	return s.idcode
}

// OpenWithReset drives the §3 bring-up with a single physical reset
// pulse between the IDCODE read and DAP reset_state, matching
// swddump.cpp's run_experiment: initialize() then reset_target(100000)
// then dap.reset_state(). Unlike OpenUnderReset below, the reset line
// is back high well before DAP.ResetState runs.
func OpenWithReset(t Transport, settle time.Duration) (*Session, error) {
	drv := NewDriver(t)

	idcode, err := drv.Initialize()
	if err != nil {
		return nil, Wrap("OpenWithReset", err)
	}
	if err := drv.ResetTarget(settle); err != nil {
		return nil, Wrap("OpenWithReset", err)
	}

	dap := NewDAP(drv)
	if err := dap.ResetState(); err != nil {
		return nil, Wrap("OpenWithReset", err)
	}

	mem := NewMemAP(dap)
	target := NewTarget(mem)
	if err := target.Initialize(); err != nil {
		return nil, Wrap("OpenWithReset", err)
	}

	return &Session{
		Driver: drv,
		DAP:    dap,
		MemAP:  mem,
		Target: target,
		idcode: idcode,
	}, nil
}

// OpenUnderReset drives the §3 bring-up the way swdhost.cpp's
// host_main does: IDCODE is read first, the physical reset line is
// then asserted and held across DAP.ResetState, Target.Initialize and
// Target.ResetHalt, and only released as the very last step.
func OpenUnderReset(t Transport, settle time.Duration) (*Session, error) {
	drv := NewDriver(t)

	idcode, err := drv.Initialize()
	if err != nil {
		return nil, Wrap("OpenUnderReset", err)
	}

	if err := drv.EnterReset(); err != nil {
		return nil, Wrap("OpenUnderReset", err)
	}
	time.Sleep(settle)

	sess, bringupErr := bringUpHeldUnderReset(drv, idcode)

	if releaseErr := drv.LeaveReset(); releaseErr != nil && bringupErr == nil {
		bringupErr = releaseErr
	}
	if bringupErr != nil {
		return nil, Wrap("OpenUnderReset", bringupErr)
	}
	return sess, nil
}

func bringUpHeldUnderReset(drv *Driver, idcode uint32) (*Session, error) {
	dap := NewDAP(drv)
	if err := dap.ResetState(); err != nil {
		return nil, err
	}

	mem := NewMemAP(dap)
	target := NewTarget(mem)
	if err := target.Initialize(); err != nil {
		return nil, err
	}
	if err := target.ResetHalt(); err != nil {
		return nil, err
	}

	return &Session{
		Driver: drv,
		DAP:    dap,
		MemAP:  mem,
		Target: target,
		idcode: idcode,
	}, nil
}

// ResetUnderReset asserts the physical reset line, waits for it to
// settle, runs fn with reset held, then releases it — a general-purpose
// version of the enter_reset()/usleep()/leave_reset() bracket for
// callers that already have an open Session and want to pulse reset
// around some operation of their own.
func (s *Session) ResetUnderReset(settle time.Duration, fn func() error) error {
	if err := s.Driver.EnterReset(); err != nil {
		return Wrap("Session.ResetUnderReset", err)
	}
	time.Sleep(settle)

	err := fn()

	if releaseErr := s.Driver.LeaveReset(); releaseErr != nil && err == nil {
		err = Wrap("Session.ResetUnderReset", releaseErr)
	}
	return err
}
