package wire

import (
	"encoding/binary"
	"errors"
)

// ErrShortBuffer is returned when a buffer is too small to unmarshal a PDU.
var ErrShortBuffer = errors.New("wire: buffer too short")

func putHeader(buf []byte, h Header) {
	buf[0] = h.Type
	buf[1] = h.Flags
	buf[2] = h.HLen
	buf[3] = h.PDO
	binary.LittleEndian.PutUint32(buf[4:8], h.PLen)
}

func getHeader(buf []byte) Header {
	return Header{
		Type:  buf[0],
		Flags: buf[1],
		HLen:  buf[2],
		PDO:   buf[3],
		PLen:  binary.LittleEndian.Uint32(buf[4:8]),
	}
}

// MarshalICReq writes req into a 128-byte buffer.
func MarshalICReq(req *ICReq) []byte {
	buf := make([]byte, ICReqLen)
	putHeader(buf, req.Header)
	binary.LittleEndian.PutUint16(buf[8:10], req.PFV)
	buf[10] = req.HPDA
	buf[11] = req.Digest
	binary.LittleEndian.PutUint32(buf[12:16], req.MaxR2T)
	return buf
}

// UnmarshalICReq reads a 128-byte icreq PDU.
func UnmarshalICReq(data []byte) (*ICReq, error) {
	if len(data) < ICReqLen {
		return nil, ErrShortBuffer
	}
	return &ICReq{
		Header: getHeader(data),
		PFV:    binary.LittleEndian.Uint16(data[8:10]),
		HPDA:   data[10],
		Digest: data[11],
		MaxR2T: binary.LittleEndian.Uint32(data[12:16]),
	}, nil
}

// MarshalICResp writes resp into a 128-byte buffer.
func MarshalICResp(resp *ICResp) []byte {
	buf := make([]byte, ICRespLen)
	putHeader(buf, resp.Header)
	binary.LittleEndian.PutUint16(buf[8:10], resp.PFV)
	buf[10] = resp.CPDA
	buf[11] = resp.Digest
	binary.LittleEndian.PutUint32(buf[12:16], resp.MaxData)
	return buf
}

// UnmarshalCmdPdu reads the 72-byte command PDU (header + SQE).
func UnmarshalCmdPdu(data []byte) (*CmdPdu, error) {
	if len(data) < CmdPduLen {
		return nil, ErrShortBuffer
	}
	hdr := getHeader(data)
	sqe := data[GenericHeaderLen:CmdPduLen]
	cmd := &CmdPdu{
		Header: hdr,
		SQE: NvmeSQE{
			Opcode:     sqe[0],
			Flags:      sqe[1],
			CID:        binary.LittleEndian.Uint16(sqe[2:4]),
			NSID:       binary.LittleEndian.Uint32(sqe[4:8]),
			Metadata:   binary.LittleEndian.Uint64(sqe[24:32]),
			SGLDescTyp: sqe[32],
			CDW10:      binary.LittleEndian.Uint32(sqe[40:44]),
			CDW11:      binary.LittleEndian.Uint32(sqe[44:48]),
			CDW12:      binary.LittleEndian.Uint32(sqe[48:52]),
			CDW13:      binary.LittleEndian.Uint32(sqe[52:56]),
			CDW14:      binary.LittleEndian.Uint32(sqe[56:60]),
			CDW15:      binary.LittleEndian.Uint32(sqe[60:64]),
		},
	}
	copy(cmd.SQE.Reserved[:], sqe[8:24])
	copy(cmd.SQE.SGLPad[:], sqe[33:48])
	return cmd, nil
}

// MarshalRspPdu writes a 24-byte response PDU.
func MarshalRspPdu(rsp *RspPdu) []byte {
	buf := make([]byte, RspPduLen)
	putHeader(buf, rsp.Header)
	binary.LittleEndian.PutUint32(buf[8:12], rsp.CQE.Result)
	binary.LittleEndian.PutUint32(buf[12:16], rsp.CQE.Reserved)
	binary.LittleEndian.PutUint16(buf[16:18], rsp.CQE.SQHead)
	binary.LittleEndian.PutUint16(buf[18:20], rsp.CQE.SQID)
	binary.LittleEndian.PutUint16(buf[20:22], rsp.CQE.CID)
	binary.LittleEndian.PutUint16(buf[22:24], rsp.CQE.Status)
	return buf
}

// MarshalDataPdu writes a 24-byte c2h_data/h2c_data PDU.
func MarshalDataPdu(p *DataPdu) []byte {
	buf := make([]byte, DataPduLen)
	putHeader(buf, p.Header)
	binary.LittleEndian.PutUint16(buf[8:10], p.CID)
	binary.LittleEndian.PutUint16(buf[10:12], p.Ttag)
	binary.LittleEndian.PutUint32(buf[12:16], p.DataOffset)
	binary.LittleEndian.PutUint32(buf[16:20], p.DataLength)
	return buf
}

// UnmarshalDataPdu reads a 24-byte h2c_data PDU (the rest of the header
// after the generic 8 bytes already consumed by the receive state
// machine is passed in `rest`).
func UnmarshalDataPdu(hdr Header, rest []byte) (*DataPdu, error) {
	if len(rest) < DataPduLen-GenericHeaderLen {
		return nil, ErrShortBuffer
	}
	return &DataPdu{
		Header:     hdr,
		CID:        binary.LittleEndian.Uint16(rest[0:2]),
		Ttag:       binary.LittleEndian.Uint16(rest[2:4]),
		DataOffset: binary.LittleEndian.Uint32(rest[4:8]),
		DataLength: binary.LittleEndian.Uint32(rest[8:12]),
	}, nil
}

// MarshalR2TPdu writes a 24-byte r2t PDU.
func MarshalR2TPdu(p *R2TPdu) []byte {
	buf := make([]byte, R2TPduLen)
	putHeader(buf, p.Header)
	binary.LittleEndian.PutUint16(buf[8:10], p.CID)
	binary.LittleEndian.PutUint16(buf[10:12], p.Ttag)
	binary.LittleEndian.PutUint32(buf[12:16], p.R2TOffset)
	binary.LittleEndian.PutUint32(buf[16:20], p.R2TLength)
	return buf
}

// PeekHeader decodes just the generic 8-byte header, used by the receive
// state machine before it knows which PDU type follows.
func PeekHeader(data []byte) (Header, error) {
	if len(data) < GenericHeaderLen {
		return Header{}, ErrShortBuffer
	}
	return getHeader(data), nil
}

// ExpectedHeaderLen returns the hlen a valid PDU of this type must carry,
// excluding any trailing header digest.
func ExpectedHeaderLen(pduType uint8) (int, bool) {
	switch pduType {
	case PduTypeICReq:
		return ICReqLen, true
	case PduTypeCmd:
		return CmdPduLen, true
	case PduTypeH2CData:
		return DataPduLen, true
	default:
		return 0, false
	}
}
