package swd

// DP register addresses (A[3:2]), selected at SWD header level. §3
// "Register address space".
const (
	dpIDCODE  = 0x0 // read-only, bank-independent
	dpABORT   = 0x0 // write-only, bank-independent
	dpCTRLSTAT = 0x4
	dpSELECT  = 0x8
	dpRDBUFF  = 0xC
	dpTARGETSEL = 0xC // write-only alias of RDBUFF's address, unused (no multi-drop)
)

// ABORT register bits (write-only DP register at A=0).
const (
	abortDAPABORT    = 1 << 0
	abortSTKCMPCLR   = 1 << 1
	abortSTKERRCLR   = 1 << 2
	abortWDERRCLR    = 1 << 3
	abortORUNERRCLR  = 1 << 4
)

// CTRL/STAT register bits (DP register at A=1, bank 0).
const (
	ctrlstatCSYSPWRUPACK = 1 << 31
	ctrlstatCSYSPWRUPREQ = 1 << 30
	ctrlstatCDBGPWRUPACK = 1 << 29
	ctrlstatCDBGPWRUPREQ = 1 << 28
	ctrlstatCDBGRSTREQ   = 1 << 26
	ctrlstatWDATAERR     = 1 << 7
	ctrlstatSTICKYORUN   = 1 << 5
	ctrlstatSTICKYCMP    = 1 << 4
	ctrlstatSTICKYERR    = 1 << 3
)

// stickyErrorMask covers every sticky DP fault bit (§3 invariants):
// these latch until cleared via ABORT.
const stickyErrorMask = ctrlstatSTICKYERR | ctrlstatSTICKYCMP | ctrlstatSTICKYORUN | ctrlstatWDATAERR

// SELECT register fields (DP register at A=2).
const (
	selectAPSELShift     = 24
	selectAPBANKSELShift = 4
	selectDPBANKSELMask  = 0xF
)

// MEM-AP register offsets within its active bank (§4.3).
const (
	apCSW = 0x00
	apTAR = 0x04
	apDRW = 0x0C
	apBD0 = 0x10
	apBD1 = 0x14
	apBD2 = 0x18
	apBD3 = 0x1C
)

// CSW fields (§4.3).
const (
	cswSizeByte     = 0x0
	cswSizeHalfword = 0x1
	cswSizeWord     = 0x2
	cswAddrIncOff   = 0x0 << 4
	cswAddrIncSingle = 0x1 << 4
	cswDbgSwEnable  = 1 << 6
)

// memApWindowSize is the 10-bit TAR auto-increment window (§4.3): 1 KiB.
const memApWindowSize = 1024

// ACK codes, LSB-first on the wire (§4.1).
const (
	ackOK    = 0b001
	ackWAIT  = 0b010
	ackFAULT = 0b100
)

// JTAG-to-SWD line-reset switch sequence (§6): 0x79E7, LSB-first.
const jtagToSWDSequence = 0x79E7

// Cortex-M Debug Control Block registers, fixed absolute addresses (§4.4).
const (
	regDHCSR = 0xE000EDF0
	regDCRSR = 0xE000EDF4
	regDCRDR = 0xE000EDF8
	regDEMCR = 0xE000EDDC
	regDFSR  = 0xE000ED30
	regAIRCR = 0xE000ED0C
)

// DHCSR fields.
const (
	dhcsrDBGKEY     = 0xA05F << 16
	dhcsrC_DEBUGEN  = 1 << 0
	dhcsrC_HALT     = 1 << 1
	dhcsrC_STEP     = 1 << 2
	dhcsrC_MASKINTS = 1 << 3
	dhcsrS_REGRDY   = 1 << 16
	dhcsrS_HALT     = 1 << 17
)

// DCRSR fields.
const (
	dcrsrREGWnR = 1 << 16
)

// REGSEL encoding (§4.4).
const (
	regR0  = 0
	regR15 = 15
	regPC  = regR15
	regXPSR = 16
	regMSP  = 17
	regPSP  = 18
	regSpecial = 20 // packs CONTROL/FAULTMASK/BASEPRI/PRIMASK
)

// DEMCR fields.
const (
	demcrVC_CORERESET = 1 << 0
)

// AIRCR fields.
const (
	aircrVECTKEY      = 0x05FA << 16
	aircrSYSRESETREQ  = 1 << 2
)

// DFSR halt-cause bits (§4.4).
const (
	dfsrHALTED  = 1 << 0
	dfsrBKPT    = 1 << 1
	dfsrDWTTRAP = 1 << 2
	dfsrVCATCH  = 1 << 3
	dfsrEXTERNAL = 1 << 4
	dfsrReasonMask = 0x1F
)

// bkptSemihostingInstr is the Thumb encoding of BKPT #0xAB.
const bkptSemihostingInstr = 0xBEAB

// ARM semihosting operation codes used by §4.5.
const (
	sysWRITEC = 0x03
	sysEXIT   = 0x18
)

// ADP stop reasons carried in R1 for SYS_EXIT (ARM semihosting spec).
const adpStoppedApplicationExit = 0x20026

// memory-mapped boot-ROM overlay control, per original_source/swddump.cpp's
// unmap_boot_sector. Nothing in this package uses them; cmd/dumpflash
// declares its own copies.
const (
	syscSysMemRemap      = 0x40048000
	syscSysMemRemapUserFlash = 2
)
