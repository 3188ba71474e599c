package queue

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/i10-io/i10-target/internal/backend"
	"github.com/i10-io/i10-target/internal/digest"
	"github.com/i10-io/i10-target/internal/wire"
)

// RecvStage is the receive-side state machine a queue walks through for
// every inbound PDU (spec.md §4.2): a generic header (plus an optional
// trailing header digest, consumed inline within the Pdu stage), an
// optional data payload, and an optional trailing data digest. Error is
// terminal and fatal to the connection.
type RecvStage int

const (
	RecvStagePdu RecvStage = iota
	RecvStageData
	RecvStageDataDigest
	RecvStageError
)

// recvCursor holds the in-progress state for whichever PDU is currently
// being read off the wire. It is reset to RecvStagePdu once a PDU (and
// its optional payload/digest) is fully consumed.
type recvCursor struct {
	stage RecvStage

	hdrBuf [wire.GenericHeaderLen]byte
	hdrGot int

	hdr wire.Header

	// extraBuf holds the fixed-size remainder of the header for PDU
	// types that carry more than the generic 8 bytes (icreq, cmd,
	// h2c_data).
	extraBuf []byte
	extraGot int

	slot *Slot // command slot this PDU's payload belongs to, if any

	// hdgstBuf holds the trailing 4-byte header digest, read once the
	// header itself is complete, when header digests are negotiated.
	hdgstBuf [wire.DigestLen]byte
	hdgstGot int

	dataBuf  []byte // destination for the current data PDU's payload
	dataGot  int
	ddgstBuf [wire.DigestLen]byte
	ddgstGot int
	expDDGST uint32
}

func (q *Queue) resetRecvCursor() {
	q.recv = recvCursor{}
}

// driveRecv reads up to budget PDUs' worth of progress from the queue's
// connection. It returns the number of complete PDUs consumed and
// whether the connection hit a fatal condition (protocol violation,
// digest mismatch, or peer close) that the caller must tear down for.
func (q *Queue) driveRecv(budget int) (processed int, fatal bool) {
	for processed < budget {
		advanced, pduDone, err := q.recvStep()
		if err != nil {
			if errors.Is(err, errWouldBlock) {
				return processed, false
			}
			if errors.Is(err, io.EOF) {
				return processed, true
			}
			q.log.Warnf("recv error on qid=%d: %v", q.QID, err)
			return processed, true
		}
		if !advanced {
			// No bytes were available and none were pending; nothing more
			// to do this pass.
			return processed, false
		}
		if pduDone {
			processed++
		}
	}
	return processed, false
}

// recvStep advances the receive state machine by reading whatever is
// currently available on the socket, without blocking. It returns
// advanced=false when no data was read (EAGAIN), pduDone=true when a
// full PDU (header, payload, digest) has just been consumed.
func (q *Queue) recvStep() (advanced bool, pduDone bool, err error) {
	switch q.recv.stage {
	case RecvStagePdu:
		return q.stepHeader()
	case RecvStageData:
		return q.stepData()
	case RecvStageDataDigest:
		return q.stepDataDigest()
	case RecvStageError:
		return false, false, errConnFatal
	default:
		return false, false, errConnFatal
	}
}

func (q *Queue) stepHeader() (advanced, done bool, err error) {
	rc := &q.recv
	if rc.hdrGot < wire.GenericHeaderLen {
		n, rerr := q.readInto(rc.hdrBuf[rc.hdrGot:])
		if n > 0 {
			rc.hdrGot += n
			advanced = true
		}
		if rerr != nil {
			return advanced, false, rerr
		}
		if rc.hdrGot < wire.GenericHeaderLen {
			return advanced, false, errWouldBlock
		}
		hdr, _ := wire.PeekHeader(rc.hdrBuf[:])
		rc.hdr = hdr

		expLen, ok := wire.ExpectedHeaderLen(hdr.Type)
		if !ok || int(hdr.HLen) != expLen {
			rc.stage = RecvStageError
			return advanced, false, errConnFatal
		}
		rc.extraBuf = make([]byte, expLen-wire.GenericHeaderLen)
		rc.extraGot = 0
	}

	if rc.extraGot < len(rc.extraBuf) {
		n, rerr := q.readInto(rc.extraBuf[rc.extraGot:])
		if n > 0 {
			rc.extraGot += n
			advanced = true
		}
		if rerr != nil {
			return advanced, false, rerr
		}
		if rc.extraGot < len(rc.extraBuf) {
			return advanced, false, errWouldBlock
		}
	}

	if q.hdrDigest && rc.hdr.Flags&wire.FlagHDGST != 0 {
		if rc.hdgstGot < wire.DigestLen {
			n, rerr := q.readInto(rc.hdgstBuf[rc.hdgstGot:])
			if n > 0 {
				rc.hdgstGot += n
				advanced = true
			}
			if rerr != nil {
				return advanced, false, rerr
			}
			if rc.hdgstGot < wire.DigestLen {
				return advanced, false, errWouldBlock
			}
		}
		got := binary.LittleEndian.Uint32(rc.hdgstBuf[:])
		want := digest.OfSegments([][]byte{rc.hdrBuf[:], rc.extraBuf})
		if got != want {
			if q.metrics != nil {
				q.metrics.DigestErrors.WithLabelValues("header").Inc()
			}
			rc.stage = RecvStageError
			return advanced, false, errConnFatal
		}
	}

	if err := q.dispatchHeader(); err != nil {
		return advanced, false, err
	}
	// dispatchHeader resets the cursor back to RecvStagePdu when the PDU
	// needed no further payload/digest phase; anything else means it
	// armed stepData/stepDataDigest and the PDU isn't done yet.
	return advanced, q.recv.stage == RecvStagePdu, nil
}

// dispatchHeader runs once a PDU's full header has arrived. It either
// finishes the PDU immediately (icreq, or a cmd with no inline data) or
// arms the cursor for a following data/digest phase.
func (q *Queue) dispatchHeader() error {
	rc := &q.recv
	switch rc.hdr.Type {
	case wire.PduTypeICReq:
		full := append(rc.hdrBuf[:], rc.extraBuf...)
		req, err := wire.UnmarshalICReq(full)
		if err != nil {
			rc.stage = RecvStageError
			return errConnFatal
		}
		if err := q.handleICReq(req); err != nil {
			return err
		}
		q.resetRecvCursor()
		return nil

	case wire.PduTypeCmd:
		cmd, err := wire.UnmarshalCmdPdu(append(rc.hdrBuf[:], rc.extraBuf...))
		if err != nil {
			rc.stage = RecvStageError
			return errConnFatal
		}
		slot, ok := q.pool.Alloc()
		if !ok {
			q.log.Errorf("qid=%d command pool exhausted", q.QID)
			rc.stage = RecvStageError
			return errConnFatal
		}
		if err := q.handleCmd(slot, cmd); err != nil {
			return err
		}
		if rc.hdr.PLen > uint32(rc.hdr.HLen) {
			// Inline data follows the header; stay in this PDU until it
			// (and any digest) is drained.
			rc.slot = slot
			rc.dataBuf = slot.SG[0][:rc.hdr.PLen-uint32(rc.hdr.HLen)]
			rc.dataGot = 0
			if rc.hdr.Flags&wire.FlagDDGST != 0 {
				rc.stage = RecvStageData
			} else {
				rc.stage = RecvStageData // data only, digest step skipped below
			}
			return nil
		}
		q.afterCmdPayload(slot)
		q.resetRecvCursor()
		return nil

	case wire.PduTypeH2CData:
		dp, err := wire.UnmarshalDataPdu(rc.hdr, rc.extraBuf)
		if err != nil {
			rc.stage = RecvStageError
			return errConnFatal
		}
		slot := q.pool.Get(dp.Ttag)
		if slot == nil || slot.CID != dp.CID {
			rc.stage = RecvStageError
			return errConnFatal
		}
		if dp.DataOffset != slot.RBytesDone {
			// Out-of-order or replayed h2c_data: PINoF.c's
			// i10_target_handle_h2c_data rejects the command locally and
			// tears the connection down rather than trusting the chunk.
			q.completeLocally(slot, backend.Status(wire.StatusInvalidFieldDNR))
			rc.stage = RecvStageError
			return errConnFatal
		}
		off := int(dp.DataOffset)
		length := int(dp.DataLength)
		buf, bufErr := slot.sgWindow(off, length)
		if bufErr != nil {
			rc.stage = RecvStageError
			return errConnFatal
		}
		rc.slot = slot
		rc.dataBuf = buf
		rc.dataGot = 0
		rc.stage = RecvStageData
		return nil

	default:
		rc.stage = RecvStageError
		return errConnFatal
	}
}

func (q *Queue) stepData() (advanced, done bool, err error) {
	rc := &q.recv
	if rc.dataGot < len(rc.dataBuf) {
		n, rerr := q.readInto(rc.dataBuf[rc.dataGot:])
		if n > 0 {
			rc.dataGot += n
			advanced = true
		}
		if rerr != nil {
			return advanced, false, rerr
		}
		if rc.dataGot < len(rc.dataBuf) {
			return advanced, false, errWouldBlock
		}
	}

	if q.dataDigest && rc.hdr.Flags&wire.FlagDDGST != 0 {
		rc.expDDGST = digest.Of(rc.dataBuf)
		rc.ddgstGot = 0
		rc.stage = RecvStageDataDigest
		return advanced, false, nil
	}

	return advanced, true, q.finishDataPdu()
}

func (q *Queue) stepDataDigest() (advanced, done bool, err error) {
	rc := &q.recv
	if rc.ddgstGot < wire.DigestLen {
		n, rerr := q.readInto(rc.ddgstBuf[rc.ddgstGot:])
		if n > 0 {
			rc.ddgstGot += n
			advanced = true
		}
		if rerr != nil {
			return advanced, false, rerr
		}
		if rc.ddgstGot < wire.DigestLen {
			return advanced, false, errWouldBlock
		}
	}

	got := binary.LittleEndian.Uint32(rc.ddgstBuf[:])
	if got != rc.expDDGST {
		if q.metrics != nil {
			q.metrics.DigestErrors.WithLabelValues("data").Inc()
		}
		rc.stage = RecvStageError
		return advanced, false, errConnFatal
	}

	return advanced, true, q.finishDataPdu()
}

func (q *Queue) finishDataPdu() error {
	rc := &q.recv
	slot := rc.slot
	if slot != nil {
		slot.RBytesDone += uint32(len(rc.dataBuf))
		if rc.hdr.Type == wire.PduTypeCmd {
			q.afterCmdPayload(slot)
		} else if rc.hdr.Flags&wire.FlagDataLast != 0 || slot.RBytesDone >= slot.TransferLen {
			q.submitSlot(slot)
		}
	}
	q.resetRecvCursor()
	return nil
}

// afterCmdPayload runs once a command PDU (and any inline data it
// carried) is fully received: either submit immediately, or, for a
// non-inline write, queue an r2t.
func (q *Queue) afterCmdPayload(slot *Slot) {
	if slot.InitFailed() {
		q.backend.Uninit(&slot.Req)
		q.completeLocally(slot, backend.Status(wire.StatusInvalidFieldDNR))
		return
	}
	if !slot.Read && slot.RBytesDone < slot.TransferLen {
		q.queueR2T(slot)
		return
	}
	q.submitSlot(slot)
}

func (q *Queue) submitSlot(slot *Slot) {
	slot.ClearNeedDataIn()
	q.backend.Submit(q.sq, &slot.Req)
}

var (
	errWouldBlock = errors.New("queue: read would block")
	errConnFatal  = errors.New("queue: fatal protocol condition")
)
