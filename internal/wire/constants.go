// Package wire defines the on-the-wire layout of the NVMe-over-TCP PDUs
// this target accepts and emits. Layouts mirror the NVMe-TCP transport
// specification; field names follow the Linux kernel's nvme-tcp.h.
package wire

// PDU types carried in the generic header's Type field.
const (
	PduTypeICReq   uint8 = 0x0
	PduTypeICResp  uint8 = 0x1
	PduTypeH2CTerm uint8 = 0x2
	PduTypeC2HTerm uint8 = 0x3
	PduTypeCmd     uint8 = 0x4
	PduTypeRsp     uint8 = 0x5
	PduTypeH2CData uint8 = 0x6
	PduTypeC2HData uint8 = 0x7
	PduTypeR2T     uint8 = 0x9
)

// Generic header flags.
const (
	FlagHDGST       uint8 = 1 << 0 // PDU carries a trailing header digest
	FlagDDGST       uint8 = 1 << 1 // PDU's data is followed by a data digest
	FlagDataLast    uint8 = 1 << 2 // last data PDU for this command
	FlagDataSuccess uint8 = 1 << 3 // data PDU piggy-backs command success
)

// Digest negotiation bits, as carried in icreq/icresp "digest".
const (
	DigestEnableHeader uint8 = 1 << 0
	DigestEnableData   uint8 = 1 << 1
)

// Fixed, accepted connection parameters (spec.md §4.5, §6). No other
// values are negotiated; anything else is a fatal icreq.
const (
	PFV            uint16 = 0x0
	HPDA           uint8  = 0x0
	CPDA           uint8  = 0x0
	MaxR2T         uint32 = 0x0
	MaxDataICResp  uint32 = 0xffff
	InlineDataSize        = 4 * 4096 // default inline-data size: 4 * PAGE_SIZE
)

// Fixed PDU sizes (bytes). icreq/icresp are padded to 128 bytes; cmd is
// the 8-byte generic header plus a 64-byte NVMe SQE; rsp is the header
// plus a 16-byte completion queue entry; data PDUs and r2t share the
// same 24-byte frame.
const (
	GenericHeaderLen = 8
	ICReqLen         = 128
	ICRespLen        = 128
	NvmeCmdLen       = 64
	CmdPduLen        = GenericHeaderLen + NvmeCmdLen // 72
	NvmeCqeLen       = 16
	RspPduLen        = GenericHeaderLen + NvmeCqeLen // 24
	DataPduLen       = 24
	R2TPduLen        = 24
	DigestLen        = 4 // CRC32C trailer
)

// NVMe opcodes relevant to this target (read/write/flush on the admin or
// an I/O queue). Anything else is passed through to the backend as-is.
const (
	NvmeCmdFlush uint8 = 0x00
	NvmeCmdWrite uint8 = 0x01
	NvmeCmdRead  uint8 = 0x02
)

// SGL descriptor types. Only a single inline-data descriptor is accepted
// on the wire; every other type is rejected (spec.md §9 open question).
const (
	SGLDescTypeData        uint8 = 0x0
	SGLDescSubTypeOffset   uint8 = 0x1
	InlineDataSGLByte      uint8 = SGLDescTypeData<<4 | SGLDescSubTypeOffset
)

// AdminQueueID is the reserved queue number that never caravans.
const AdminQueueID uint16 = 0

// NVMe status codes this target may return in a local completion.
const (
	StatusSuccess            uint16 = 0x0000
	StatusInvalidFieldDNR    uint16 = 0x0002 | 0x4000 // INVALID_FIELD | DNR
	StatusInternal           uint16 = 0x0006
)
