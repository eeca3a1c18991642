package swd

import "fmt"

// ExitError is returned by Loop when the target issues SYS_EXIT (§9
// Open Question, resolved: the source never defines a clean exit, so
// this implementation adds one rather than looping forever on an
// operator signal). Session owners should translate Code into the
// process exit status instead of the generic fatal-error path.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("target requested exit, code=%d", e.Code)
}

// Semihost is the L5 semihosting supervisor (§4.5): it polls for halt,
// identifies BKPT 0xAB, dispatches the operation it encodes, and
// resumes the target.
type Semihost struct {
	target  *Target
	console Console
}

// NewSemihost constructs the L5 supervisor over a halted-or-running
// target and the console sink writes are forwarded to.
func NewSemihost(target *Target, console Console) *Semihost {
	return &Semihost{target: target, console: console}
}

// Loop polls DHCSR until S_HALT, handles the halt, and repeats. It
// returns a non-nil error when polling fails, OnHalt fails, or the
// target requests SYS_EXIT (as an *ExitError).
func (s *Semihost) Loop() error {
	for {
		err := Retry(maxPollRetries, RetryBackoff, func(attempt int) (bool, error) {
			dhcsr, err := s.target.ReadWord(regDHCSR)
			if err != nil {
				return true, err
			}
			if dhcsr&dhcsrS_HALT != 0 {
				return true, nil
			}
			return false, Fail("Semihost.Loop", ErrTargetTimeout, nil)
		})
		if err != nil {
			return Wrap("Semihost.Loop", err)
		}

		s.target.state = TargetHalted
		if err := s.OnHalt(); err != nil {
			return err
		}
	}
}

// OnHalt implements §4.5 steps 1-6.
func (s *Semihost) OnHalt() error {
	cause, err := s.target.HaltCause()
	if err != nil {
		return Wrap("Semihost.OnHalt", err)
	}

	if !cause.Breakpoint {
		logger.Warnf("processor halted for unexpected reason, dfsr=%#x", cause.Raw())
		return Fail("Semihost.OnHalt", ErrSemihostingUnsupported, fmt.Errorf("dfsr=%#x", cause.Raw()))
	}

	pc, err := s.target.ReadPC()
	if err != nil {
		return Wrap("Semihost.OnHalt", err)
	}

	// Some targets only support 32-bit accesses; PC is 16-bit aligned,
	// so load the containing word and extract the right halfword (§4.5
	// step 2).
	wordAddr := pc.AlignedDown(SizeWord)
	instrWord, err := s.target.ReadWord(wordAddr)
	if err != nil {
		return Wrap("Semihost.OnHalt", err)
	}

	var instr uint16
	if pc&2 != 0 {
		instr = uint16(instrWord >> 16)
	} else {
		instr = uint16(instrWord & 0xFFFF)
	}

	if instr != bkptSemihostingInstr {
		logger.Warnf("unexpected breakpoint %#04x @%#08x", instr, pc)
		return Fail("Semihost.OnHalt", ErrSemihostingUnsupported, fmt.Errorf("instr=%#04x pc=%#08x", instr, pc))
	}

	operation, err := s.target.ReadRegister(regR0)
	if err != nil {
		return Wrap("Semihost.OnHalt", err)
	}
	parameter, err := s.target.ReadRegister(regR0 + 1) // R1
	if err != nil {
		return Wrap("Semihost.OnHalt", err)
	}

	if err := s.dispatch(operation, parameter); err != nil {
		return err
	}

	// Advance PC past the 16-bit BKPT and resume (§4.5 steps 5-6).
	if err := s.target.WritePC(pc.Add(1, SizeHalfword)); err != nil {
		return Wrap("Semihost.OnHalt", err)
	}
	return Wrap("Semihost.OnHalt", s.target.Resume())
}

func (s *Semihost) dispatch(operation uint32, parameter uint32) error {
	switch operation {
	case sysWRITEC:
		return s.sysWriteC(parameter)
	case sysEXIT:
		return s.sysExit(parameter)
	default:
		logger.Warnf("unsupported semihosting operation %#x", operation)
		return Fail("Semihost.dispatch", ErrSemihostingUnsupported, fmt.Errorf("operation=%#x", operation))
	}
}

// sysWriteC writes the low byte of parameter to the console and flushes
// it (§4.5 step 4, "SYS_WRITEC"). R0 is left unchanged on success.
func (s *Semihost) sysWriteC(parameter uint32) error {
	if err := s.console.WriteByte(byte(parameter)); err != nil {
		return Wrap("Semihost.sysWriteC", err)
	}
	return Wrap("Semihost.sysWriteC", s.console.Flush())
}

// sysExit resolves §9's open question: R1 is read as a pointer to
// {reason, subcode} when it looks like a target address (word-aligned,
// top byte zero, non-zero), else as a bare ADP-stopped-reason word.
// For ADP_Stopped_ApplicationExit the exit code is the subcode from the
// pointer form, or 0 for the bare form; for any other reason the exit
// code is the reason value itself.
func (s *Semihost) sysExit(parameter uint32) error {
	reason := parameter
	code := 0

	looksLikePointer := parameter&0x3 == 0 && parameter&0xFF000000 == 0 && parameter != 0
	if looksLikePointer {
		block := make([]uint32, 2)
		if err := s.target.ReadBlock(Addr(parameter), 2, block); err == nil {
			reason = block[0]
			code = int(block[1])
		}
	}

	if reason != adpStoppedApplicationExit {
		code = int(reason)
	}

	return &ExitError{Code: code}
}
