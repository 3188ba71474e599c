package wire

// Header is the 8-byte generic NVMe-TCP PDU header common to every PDU
// type. HLen is the length of the PDU header (including this generic
// header, excluding any header digest); PLen is the total PDU length including
// data and digests; PDO is the "PDU data offset" used for alignment
// padding, which this target never emits (HPDA == 0).
type Header struct {
	Type  uint8
	Flags uint8
	HLen  uint8
	PDO   uint8
	PLen  uint32
}

// HasHDGST reports whether this PDU carries a header digest.
func (h Header) HasHDGST() bool { return h.Flags&FlagHDGST != 0 }

// HasDDGST reports whether this PDU's data is followed by a data digest.
func (h Header) HasDDGST() bool { return h.Flags&FlagDDGST != 0 }

// ICReq is the initial connection request, 128 bytes on the wire.
type ICReq struct {
	Header Header
	PFV    uint16
	HPDA   uint8
	Digest uint8
	MaxR2T uint32
}

// ICResp is the initial connection response, 128 bytes on the wire.
type ICResp struct {
	Header  Header
	PFV     uint16
	CPDA    uint8
	Digest  uint8
	MaxData uint32
}

// CmdPdu carries one 64-byte NVMe submission queue entry, optionally
// followed by inline write data in the same PDU.
type CmdPdu struct {
	Header Header
	SQE    NvmeSQE
}

// NvmeSQE is the fixed 64-byte NVMe submission queue entry. Only the
// fields this target inspects are broken out; the rest travel as an
// opaque trailer so the backend can interpret the command in full.
type NvmeSQE struct {
	Opcode     uint8
	Flags      uint8
	CID        uint16 // command identifier, echoed in the completion
	NSID       uint32
	Reserved   [16]byte
	Metadata   uint64
	SGLDescTyp uint8  // high nibble: SGL descriptor type; low nibble: subtype
	SGLPad     [15]byte
	CDW10      uint32
	CDW11      uint32
	CDW12      uint32
	CDW13      uint32
	CDW14      uint32
	CDW15      uint32
}

// RspPdu carries the NVMe completion queue entry.
type RspPdu struct {
	Header Header
	CQE    NvmeCQE
}

// NvmeCQE is the fixed 16-byte NVMe completion queue entry.
type NvmeCQE struct {
	Result   uint32
	Reserved uint32
	SQHead   uint16
	SQID     uint16
	CID      uint16
	Status   uint16 // phase bit + status code, as placed on the wire
}

// DataPdu is shared by c2h_data (target-to-host) and h2c_data
// (host-to-target) — both are 24-byte frames identifying a command by
// Ttag and describing an offset/length window of its transfer.
type DataPdu struct {
	Header     Header
	CID        uint16
	Ttag       uint16
	DataOffset uint32
	DataLength uint32
}

// R2TPdu asks the host to send write data for [Offset, Offset+Length).
type R2TPdu struct {
	Header    Header
	CID       uint16
	Ttag      uint16
	R2TOffset uint32
	R2TLength uint32
}
