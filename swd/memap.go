package swd

import "fmt"

// MemAP is the L3 Memory Access Port (§4.3): it drives AP 0's CSW/TAR/DRW
// registers to translate target-address reads and writes into DP/AP
// transactions, handling the 1KiB auto-increment window and
// word/halfword/byte sizing.
type MemAP struct {
	dap     *DAP
	apIndex uint8

	cswValid bool
	cswValue uint32
	cswEpoch int

	tarValid bool
	tarValue Addr
}

// NewMemAP constructs the L3 engine over AP 0, the only AP this
// implementation enumerates (§1 Non-goals).
func NewMemAP(dap *DAP) *MemAP {
	return &MemAP{dap: dap, apIndex: 0}
}

func cswSizeField(sz Size) uint32 {
	switch sz {
	case SizeByte:
		return cswSizeByte
	case SizeHalfword:
		return cswSizeHalfword
	default:
		return cswSizeWord
	}
}

// setCSW writes CSW only when the requested value differs from the
// last-written shadow, or the shadow was invalidated by a DAP
// ResetState since it was last written (§4.3 "CSW shadow").
func (m *MemAP) setCSW(sz Size, autoIncrement bool) error {
	value := cswDbgSwEnable | cswSizeField(sz)
	if autoIncrement {
		value |= cswAddrIncSingle
	} else {
		value |= cswAddrIncOff
	}

	if m.cswValid && m.cswEpoch == m.dap.Epoch() && m.cswValue == value {
		return nil
	}

	if err := m.dap.WriteAP(m.apIndex, apCSW, value); err != nil {
		return Wrap("MemAP.setCSW", err)
	}

	m.cswValid = true
	m.cswValue = value
	m.cswEpoch = m.dap.Epoch()
	return nil
}

// setTAR writes TAR only when the address differs from the shadow.
func (m *MemAP) setTAR(addr Addr) error {
	if m.tarValid && m.tarValue == addr {
		return nil
	}
	if err := m.dap.WriteAP(m.apIndex, apTAR, uint32(addr)); err != nil {
		return Wrap("MemAP.setTAR", err)
	}
	m.tarValid = true
	m.tarValue = addr
	return nil
}

// invalidateTAR is called whenever the wire state of TAR can have
// changed outside our shadow's knowledge, e.g. after an auto-increment
// DRW access.
func (m *MemAP) invalidateTAR() {
	m.tarValid = false
}

// ReadWord reads one aligned 32-bit word (§4.3 "Single-word read").
func (m *MemAP) ReadWord(addr Addr) (uint32, error) {
	if !addr.Aligned(SizeWord) {
		return 0, Fail("MemAP.ReadWord", ErrTargetState, fmt.Errorf("addr %#08x not word-aligned", addr))
	}
	if err := m.setCSW(SizeWord, false); err != nil {
		return 0, Wrap("MemAP.ReadWord", err)
	}
	if err := m.setTAR(addr); err != nil {
		return 0, Wrap("MemAP.ReadWord", err)
	}
	v, err := m.dap.ReadAP(m.apIndex, apDRW)
	if err != nil {
		return 0, Wrap("MemAP.ReadWord", err)
	}
	return v, nil
}

// WriteWord writes one aligned 32-bit word (§4.3 "Single-word write").
func (m *MemAP) WriteWord(addr Addr, value uint32) error {
	if !addr.Aligned(SizeWord) {
		return Fail("MemAP.WriteWord", ErrTargetState, fmt.Errorf("addr %#08x not word-aligned", addr))
	}
	if err := m.setCSW(SizeWord, false); err != nil {
		return Wrap("MemAP.WriteWord", err)
	}
	if err := m.setTAR(addr); err != nil {
		return Wrap("MemAP.WriteWord", err)
	}
	if err := m.dap.WriteAP(m.apIndex, apDRW, value); err != nil {
		return Wrap("MemAP.WriteWord", err)
	}
	return nil
}

// lane extracts the byte or halfword addressed by addr's low bits from
// a 32-bit DRW payload (§3 "All SWD payloads are word-sized").
func lane(data uint32, addr Addr, sz Size) uint32 {
	shift := uint(addr&3) * 8
	switch sz {
	case SizeByte:
		return (data >> shift) & 0xFF
	case SizeHalfword:
		return (data >> shift) & 0xFFFF
	default:
		return data
	}
}

func laneInsert(base uint32, addr Addr, sz Size, value uint32) uint32 {
	shift := uint(addr&3) * 8
	switch sz {
	case SizeByte:
		mask := uint32(0xFF) << shift
		return (base &^ mask) | ((value & 0xFF) << shift)
	case SizeHalfword:
		mask := uint32(0xFFFF) << shift
		return (base &^ mask) | ((value & 0xFFFF) << shift)
	default:
		return value
	}
}

// ReadHalfword and ReadByte (§4.3 "Narrower accesses"): the address need
// not be word-aligned, but must be naturally aligned to the transfer
// size; the lane selected by TAR[1:0] applies.
func (m *MemAP) ReadHalfword(addr Addr) (uint16, error) {
	v, err := m.readSized(addr, SizeHalfword)
	return uint16(v), err
}

func (m *MemAP) ReadByte(addr Addr) (byte, error) {
	v, err := m.readSized(addr, SizeByte)
	return byte(v), err
}

func (m *MemAP) readSized(addr Addr, sz Size) (uint32, error) {
	if !addr.Aligned(sz) {
		return 0, Fail("MemAP.readSized", ErrTargetState, fmt.Errorf("addr %#08x not %d-aligned", addr, sz))
	}
	if err := m.setCSW(sz, false); err != nil {
		return 0, Wrap("MemAP.readSized", err)
	}
	if err := m.setTAR(addr); err != nil {
		return 0, Wrap("MemAP.readSized", err)
	}
	data, err := m.dap.ReadAP(m.apIndex, apDRW)
	if err != nil {
		return 0, Wrap("MemAP.readSized", err)
	}
	return lane(data, addr, sz), nil
}

func (m *MemAP) WriteHalfword(addr Addr, value uint16) error {
	return m.writeSized(addr, SizeHalfword, uint32(value))
}

func (m *MemAP) WriteByte(addr Addr, value byte) error {
	return m.writeSized(addr, SizeByte, uint32(value))
}

func (m *MemAP) writeSized(addr Addr, sz Size, value uint32) error {
	if !addr.Aligned(sz) {
		return Fail("MemAP.writeSized", ErrTargetState, fmt.Errorf("addr %#08x not %d-aligned", addr, sz))
	}
	if err := m.setCSW(sz, false); err != nil {
		return Wrap("MemAP.writeSized", err)
	}
	if err := m.setTAR(addr); err != nil {
		return Wrap("MemAP.writeSized", err)
	}
	lanedValue := laneInsert(0, addr, sz, value)
	if err := m.dap.WriteAP(m.apIndex, apDRW, lanedValue); err != nil {
		return Wrap("MemAP.writeSized", err)
	}
	return nil
}

// ReadBlock streams count words starting at addr into buf (§4.3
// "Auto-increment windows", §4.4 read_block): one CSW write and one TAR
// write, then successive DRW reads, re-writing TAR whenever the 1KiB
// auto-increment window would wrap.
func (m *MemAP) ReadBlock(addr Addr, count int, buf []uint32) error {
	if len(buf) < count {
		return Fail("MemAP.ReadBlock", ErrTargetState, fmt.Errorf("buffer too small: %d < %d", len(buf), count))
	}
	if !addr.Aligned(SizeWord) {
		return Fail("MemAP.ReadBlock", ErrTargetState, fmt.Errorf("addr %#08x not word-aligned", addr))
	}

	if err := m.setCSW(SizeWord, true); err != nil {
		return Wrap("MemAP.ReadBlock", err)
	}

	cur := addr
	if err := m.setTAR(cur); err != nil {
		return Wrap("MemAP.ReadBlock", err)
	}

	for i := 0; i < count; i++ {
		// a window crossing happens when the next word's address falls
		// in a different 1KiB window than the one TAR last targeted.
		if i > 0 && uint32(cur)%memApWindowSize == 0 {
			m.invalidateTAR()
			if err := m.setTAR(cur); err != nil {
				return Wrap("MemAP.ReadBlock", err)
			}
		}

		v, err := m.dap.ReadAP(m.apIndex, apDRW)
		if err != nil {
			return Wrap("MemAP.ReadBlock", err)
		}
		buf[i] = v

		cur = cur.Add(1, SizeWord)
		// the AP itself advanced TAR by auto-increment; our shadow must
		// track that so a later non-streaming access doesn't skip a
		// redundant write, but also must not believe it can skip the
		// window-boundary rewrite above.
		m.tarValue = cur
		if uint32(cur)%memApWindowSize == 0 {
			// TAR wrapped to the start of its window, not to cur.
			m.invalidateTAR()
		}
	}

	return nil
}

// WriteBlock is ReadBlock's write-side counterpart.
func (m *MemAP) WriteBlock(addr Addr, data []uint32) error {
	if !addr.Aligned(SizeWord) {
		return Fail("MemAP.WriteBlock", ErrTargetState, fmt.Errorf("addr %#08x not word-aligned", addr))
	}

	if err := m.setCSW(SizeWord, true); err != nil {
		return Wrap("MemAP.WriteBlock", err)
	}

	cur := addr
	if err := m.setTAR(cur); err != nil {
		return Wrap("MemAP.WriteBlock", err)
	}

	for i, v := range data {
		if i > 0 && uint32(cur)%memApWindowSize == 0 {
			m.invalidateTAR()
			if err := m.setTAR(cur); err != nil {
				return Wrap("MemAP.WriteBlock", err)
			}
		}

		if err := m.dap.WriteAP(m.apIndex, apDRW, v); err != nil {
			return Wrap("MemAP.WriteBlock", err)
		}

		cur = cur.Add(1, SizeWord)
		m.tarValue = cur
		if uint32(cur)%memApWindowSize == 0 {
			m.invalidateTAR()
		}
	}

	return nil
}
