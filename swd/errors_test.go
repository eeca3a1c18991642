package swd

import (
	"errors"
	"strings"
	"testing"
)

func TestWrapPreservesKind(t *testing.T) {
	base := Fail("inner", ErrProtocolFault, nil)
	wrapped := Wrap("outer", base)

	se, ok := wrapped.(*Error)
	if !ok {
		t.Fatalf("Wrap did not return *Error: %T", wrapped)
	}
	if se.Kind != ErrProtocolFault {
		t.Errorf("Kind = %s, want %s", se.Kind, ErrProtocolFault)
	}
	if se.Site != "outer" {
		t.Errorf("Site = %q, want %q", se.Site, "outer")
	}
}

func TestWrapOfNilIsNil(t *testing.T) {
	if Wrap("site", nil) != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestWrapOfForeignErrorBecomesTransport(t *testing.T) {
	wrapped := Wrap("site", errors.New("usb says no"))
	se, ok := wrapped.(*Error)
	if !ok || se.Kind != ErrTransport {
		t.Errorf("got %v, want ErrTransport", wrapped)
	}
}

func TestErrorIsMatchesByKind(t *testing.T) {
	a := Fail("a", ErrNoTarget, nil)
	b := &Error{Kind: ErrNoTarget}
	if !errors.Is(a, b) {
		t.Error("errors.Is should match on Kind")
	}

	c := &Error{Kind: ErrTargetTimeout}
	if errors.Is(a, c) {
		t.Error("errors.Is should not match a different Kind")
	}
}

func TestChainRendersEveryFrame(t *testing.T) {
	err := Wrap("L3", Wrap("L2", Fail("L1", ErrProtocolFault, nil)))
	chain := Chain(err)

	for _, site := range []string{"L1", "L2", "L3"} {
		if !strings.Contains(chain, site) {
			t.Errorf("chain %q missing frame %q", chain, site)
		}
	}
}
