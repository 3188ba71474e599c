package wire

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestICReqMarshalUnmarshalPreservesFixedParameters(t *testing.T) {
	req := &ICReq{
		Header: Header{Type: PduTypeICReq, HLen: ICReqLen, PLen: ICReqLen},
		PFV:    PFV,
		HPDA:   HPDA,
		Digest: DigestEnableHeader | DigestEnableData,
		MaxR2T: MaxR2T,
	}
	buf := MarshalICReq(req)
	require.Len(t, buf, ICReqLen)

	got, err := UnmarshalICReq(buf)
	require.NoError(t, err)
	assert.Equal(t, req.PFV, got.PFV)
	assert.Equal(t, req.Digest, got.Digest)
	assert.Equal(t, req.MaxR2T, got.MaxR2T)
	assert.Equal(t, PduTypeICReq, got.Header.Type)
}

func TestUnmarshalICReqShortBuffer(t *testing.T) {
	_, err := UnmarshalICReq(make([]byte, 10))
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestExpectedHeaderLenKnownTypes(t *testing.T) {
	cases := []struct {
		pduType uint8
		want    int
	}{
		{PduTypeICReq, ICReqLen},
		{PduTypeCmd, CmdPduLen},
		{PduTypeH2CData, DataPduLen},
	}
	for _, c := range cases {
		got, ok := ExpectedHeaderLen(c.pduType)
		assert.True(t, ok)
		assert.Equal(t, c.want, got)
	}
}

func TestExpectedHeaderLenUnknownType(t *testing.T) {
	_, ok := ExpectedHeaderLen(0xff)
	assert.False(t, ok)
}

func TestPeekHeaderDecodesPLenAndType(t *testing.T) {
	rsp := &RspPdu{Header: Header{Type: PduTypeRsp, HLen: RspPduLen, PLen: RspPduLen}}
	buf := MarshalRspPdu(rsp)

	h, err := PeekHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, PduTypeRsp, h.Type)
	assert.Equal(t, uint32(RspPduLen), h.PLen)
}

func TestHeaderDigestFlags(t *testing.T) {
	h := Header{Flags: FlagHDGST | FlagDataLast}
	assert.True(t, h.HasHDGST())
	assert.False(t, h.HasDDGST())
}

func TestUnmarshalCmdPduExtractsSGLDescriptor(t *testing.T) {
	cmd := &CmdPdu{
		Header: Header{Type: PduTypeCmd, HLen: CmdPduLen, PLen: CmdPduLen},
		SQE: NvmeSQE{
			Opcode:     NvmeCmdWrite,
			CID:        7,
			NSID:       1,
			SGLDescTyp: InlineDataSGLByte,
			CDW10:      0,
			CDW12:      7, // 8 blocks - 1
		},
	}
	buf := append(append([]byte{}, headerBytes(cmd.Header)...), sqeBytes(cmd.SQE)...)
	got, err := UnmarshalCmdPdu(buf)
	require.NoError(t, err)
	assert.Equal(t, uint16(7), got.SQE.CID)
	assert.Equal(t, InlineDataSGLByte, got.SQE.SGLDescTyp)
	assert.Equal(t, uint32(7), got.SQE.CDW12)
}

// headerBytes/sqeBytes rebuild the wire bytes for a CmdPdu without
// going through MarshalDataPdu-style helpers (there is no MarshalCmdPdu
// on the target side, since the target never emits command PDUs).
func headerBytes(h Header) []byte {
	buf := make([]byte, GenericHeaderLen)
	putHeader(buf, h)
	return buf
}

func sqeBytes(s NvmeSQE) []byte {
	buf := make([]byte, NvmeCmdLen)
	buf[0] = s.Opcode
	buf[1] = s.Flags
	binary.LittleEndian.PutUint16(buf[2:4], s.CID)
	binary.LittleEndian.PutUint32(buf[4:8], s.NSID)
	binary.LittleEndian.PutUint64(buf[24:32], s.Metadata)
	buf[32] = s.SGLDescTyp
	binary.LittleEndian.PutUint32(buf[40:44], s.CDW10)
	binary.LittleEndian.PutUint32(buf[44:48], s.CDW11)
	binary.LittleEndian.PutUint32(buf[48:52], s.CDW12)
	binary.LittleEndian.PutUint32(buf[52:56], s.CDW13)
	binary.LittleEndian.PutUint32(buf[56:60], s.CDW14)
	binary.LittleEndian.PutUint32(buf[60:64], s.CDW15)
	return buf
}
