package swd

import "fmt"

// ErrorKind enumerates the error classes of §7: every operation in the
// core fails with exactly one of these, never a bare error string.
type ErrorKind int

const (
	// ErrTransport is a bridge channel failure: USB, timeout, malformed
	// reply framing.
	ErrTransport ErrorKind = iota
	// ErrProtocolAckWait is a WAIT ACK that exhausted its retry budget.
	ErrProtocolAckWait
	// ErrProtocolFault is a FAULT ACK; a sticky DP bit was set.
	ErrProtocolFault
	// ErrProtocolParity is a data-phase parity mismatch on a read.
	ErrProtocolParity
	// ErrNoTarget is an IDCODE of 0/all-ones, or all-zero ACK bits.
	ErrNoTarget
	// ErrTargetState is an operation attempted in the wrong target state.
	ErrTargetState
	// ErrTargetTimeout is a polling condition that never became true.
	ErrTargetTimeout
	// ErrSemihostingUnsupported is an unknown SYS_* op or a non-semihosting
	// breakpoint.
	ErrSemihostingUnsupported
)

func (k ErrorKind) String() string {
	switch k {
	case ErrTransport:
		return "transport"
	case ErrProtocolAckWait:
		return "protocol-ack-wait"
	case ErrProtocolFault:
		return "protocol-fault"
	case ErrProtocolParity:
		return "protocol-parity"
	case ErrNoTarget:
		return "no-target"
	case ErrTargetState:
		return "target-state"
	case ErrTargetTimeout:
		return "target-timeout"
	case ErrSemihostingUnsupported:
		return "semihosting-unsupported"
	default:
		return "unknown"
	}
}

// Error is the core's single error type. It carries a Kind, the call
// site that raised it, and an optional wrapped cause, forming a chain
// that prints like a backtrace when the chain is walked with Unwrap.
type Error struct {
	Kind  ErrorKind
	Site  string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Site, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Site, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same Kind, so callers
// can write errors.Is(err, &swd.Error{Kind: swd.ErrNoTarget}).
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return te.Kind == e.Kind
}

// Fail constructs a new chain-rooted Error.
func Fail(site string, kind ErrorKind, cause error) error {
	return &Error{Kind: kind, Site: site, Cause: cause}
}

// Wrap adds a call-site frame to an existing error, preserving its Kind
// when the wrapped error is itself an *Error so callers further up the
// stack can still classify the failure with errors.As.
func Wrap(site string, err error) error {
	if err == nil {
		return nil
	}
	if se, ok := err.(*Error); ok {
		return &Error{Kind: se.Kind, Site: site, Cause: se}
	}
	return &Error{Kind: ErrTransport, Site: site, Cause: err}
}

// Chain renders the full call-site backtrace for a top-level session
// failure, one frame per line, innermost last.
func Chain(err error) string {
	var frames []string
	for err != nil {
		if se, ok := err.(*Error); ok {
			frames = append(frames, fmt.Sprintf("%s: %s", se.Site, se.Kind))
			err = se.Cause
		} else {
			frames = append(frames, err.Error())
			break
		}
	}
	s := ""
	for i, f := range frames {
		if i > 0 {
			s += "\n\t<- "
		}
		s += f
	}
	return s
}
