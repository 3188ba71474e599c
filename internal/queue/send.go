package queue

import (
	"net"

	"github.com/i10-io/i10-target/internal/digest"
	"github.com/i10-io/i10-target/internal/wire"
)

// driveSend moves completed and newly-queued commands through the send
// progression, up to budget steps, then flushes any caravan that has
// accumulated work (spec.md §4.3, §4.4). The admin queue runs with
// Batching=false and every step writes straight to the wire.
func (q *Queue) driveSend(budget int) (processed int, err error) {
	q.sendList = q.responses.DrainInto(q.sendList)

	for processed < budget && len(q.sendList) > 0 {
		idx := q.sendList[0]
		q.sendList = q.sendList[1:]
		slot := q.pool.Get(idx)

		complete, serr := q.stepSend(slot)
		if serr != nil {
			return processed, serr
		}
		processed++

		if complete {
			q.pool.Release(idx)
			if q.metrics != nil {
				q.metrics.SlotsInUse.WithLabelValues(qidLabel(q.QID)).Set(float64(q.pool.InUse()))
			}
		}
	}

	if q.policy.Batching {
		if err := q.maybeFlush(CaravanLarge); err != nil {
			return processed, err
		}
		if err := q.maybeFlush(CaravanSmall); err != nil {
			return processed, err
		}
	}
	return processed, nil
}

// stepSend advances one slot's send-state progression by exactly one
// wire-visible step. complete is true once the command's response has
// actually been handed off for transmission.
func (q *Queue) stepSend(slot *Slot) (complete bool, err error) {
	switch slot.SendState {
	case SendStateR2T:
		if err := q.sendR2T(slot); err != nil {
			return false, err
		}
		// Slot stays out of the pool's free list and off the send list;
		// it re-enters the list once the corresponding h2c_data arrives
		// and the command is submitted and completes.
		return false, nil

	case SendStateDataPdu, SendStateData, SendStateDataDigest:
		if err := q.sendDataPdu(slot); err != nil {
			return false, err
		}
		slot.SendState = SendStateResponse
		return false, nil

	case SendStateResponse:
		if err := q.sendResponse(slot); err != nil {
			return false, err
		}
		slot.SendState = SendStateNone
		return true, nil

	default:
		return true, nil
	}
}

// sendR2T builds and transmits (or batches) an r2t PDU asking the host
// for the remainder of a write command's data.
func (q *Queue) sendR2T(slot *Slot) error {
	p := &wire.R2TPdu{
		Header: wire.Header{
			Type: wire.PduTypeR2T,
			HLen: wire.R2TPduLen,
			PLen: wire.R2TPduLen,
		},
		CID:       slot.CID,
		Ttag:      slot.Index,
		R2TOffset: slot.RBytesDone,
		R2TLength: slot.TransferLen - slot.RBytesDone,
	}
	buf := wire.MarshalR2TPdu(p)
	if q.hdrDigest {
		p.Header.Flags |= wire.FlagHDGST
		buf = wire.MarshalR2TPdu(p)
		buf = digest.AppendLE(buf, headerDigestOf(buf))
	}
	if q.metrics != nil {
		q.metrics.PDUsSent.WithLabelValues("r2t").Inc()
	}
	return q.send(CaravanSmall, [][]byte{buf}, slot.Index, 0)
}

// sendDataPdu builds the c2h_data header, payload, and optional data
// digest as one set of caravan segments (spec.md §4.3's DataPdu/Data/
// DataDigest states are modeled here as the segments of a single
// c2h_data frame, kept together so they land in the same sendmsg).
func (q *Queue) sendDataPdu(slot *Slot) error {
	payload := slot.SG[0]
	p := &wire.DataPdu{
		Header: wire.Header{
			Type:  wire.PduTypeC2HData,
			HLen:  wire.DataPduLen,
			PLen:  uint32(wire.DataPduLen + len(payload)),
			Flags: wire.FlagDataLast | wire.FlagDataSuccess,
		},
		CID:        slot.CID,
		Ttag:       slot.Index,
		DataOffset: 0,
		DataLength: uint32(len(payload)),
	}
	segs := make([][]byte, 0, 3)
	if q.hdrDigest {
		p.Header.Flags |= wire.FlagHDGST
	}
	if q.dataDigest {
		p.Header.Flags |= wire.FlagDDGST
	}
	hdrBuf := wire.MarshalDataPdu(p)
	if q.hdrDigest {
		hdrBuf = digest.AppendLE(hdrBuf, headerDigestOf(hdrBuf))
	}
	segs = append(segs, hdrBuf, payload)
	if q.dataDigest {
		var tmp []byte
		tmp = digest.AppendLE(tmp, digest.Of(payload))
		segs = append(segs, tmp)
	}
	if q.metrics != nil {
		q.metrics.PDUsSent.WithLabelValues("c2h_data").Inc()
	}
	return q.send(CaravanLarge, segs, slot.Index, 1)
}

// sendResponse builds and transmits (or batches) the completion PDU.
func (q *Queue) sendResponse(slot *Slot) error {
	rsp := &wire.RspPdu{
		Header: wire.Header{
			Type: wire.PduTypeRsp,
			HLen: wire.RspPduLen,
			PLen: wire.RspPduLen,
		},
		CQE: wire.NvmeCQE{
			CID:    slot.CID,
			Status: uint16(slot.Status),
		},
	}
	buf := wire.MarshalRspPdu(rsp)
	if q.hdrDigest {
		rsp.Header.Flags |= wire.FlagHDGST
		buf = wire.MarshalRspPdu(rsp)
		buf = digest.AppendLE(buf, headerDigestOf(buf))
	}
	if q.metrics != nil {
		q.metrics.PDUsSent.WithLabelValues("rsp").Inc()
	}
	class := CaravanSmall
	if slot.caravanWriteKind() {
		class = CaravanLarge
	}
	return q.send(class, [][]byte{buf}, slot.Index, 0)
}

// send either appends segs to the named caravan (flushing first if
// there isn't room) or, on the non-batching admin queue, writes them
// straight to the socket.
func (q *Queue) send(class CaravanID, segs [][]byte, slotIdx uint16, pinPages int) error {
	if !q.policy.Batching {
		var buffers net.Buffers = segs
		_, err := buffers.WriteTo(q.conn)
		return err
	}

	car := q.caravans[class]
	total := 0
	for _, s := range segs {
		total += len(s)
	}
	if !car.HasRoomFor(total, len(segs), pinPages) {
		if err := q.flush(class); err != nil {
			return err
		}
	}
	car.AppendAll(segs, pinPages)
	car.Park(slotIdx)
	if car.MustFlush() {
		return q.flush(class)
	}
	return nil
}

// maybeFlush flushes class's caravan if it has accumulated anything;
// called once per driveSend pass so work doesn't linger past a worker
// invocation that has send budget left but no more slots to progress.
func (q *Queue) maybeFlush(class CaravanID) error {
	car := q.caravans[class]
	if car.Empty() {
		return nil
	}
	return q.flush(class)
}

// flush writes every segment currently parked in class's caravan as a
// single scatter-gather send, then resets the caravan. It does not check
// socket write space first: the write runs until every segment is
// written or the connection errors. Resetting is the only post-send
// step; slots are not released here (driveSend releases a slot once its
// response step has been handed to a caravan).
// When the queue has a live io_uring transport, the flush becomes one
// batched IORING_OP_WRITEV instead of a net.Buffers.WriteTo syscall.
func (q *Queue) flush(class CaravanID) error {
	car := q.caravans[class]
	if car.Empty() {
		return nil
	}

	if q.ring != nil && q.rawFD != 0 {
		res, err := q.ring.SubmitWritev(q.rawFD, car.Iovecs(), uint64(class))
		if err == nil {
			if q.metrics != nil {
				label := "large"
				if class == CaravanSmall {
					label = "small"
				}
				q.metrics.CaravanFlush.WithLabelValues(label).Inc()
				q.metrics.CaravanBytes.WithLabelValues(label).Observe(float64(res.Value()))
			}
			car.Reset()
			return nil
		}
		q.log.Debugf("qid=%d io_uring writev failed, falling back to net.Buffers: %v", q.QID, err)
	}

	var buffers net.Buffers = car.Iovecs()
	n, err := buffers.WriteTo(q.conn)
	if q.metrics != nil {
		label := "large"
		if class == CaravanSmall {
			label = "small"
		}
		q.metrics.CaravanFlush.WithLabelValues(label).Inc()
		q.metrics.CaravanBytes.WithLabelValues(label).Observe(float64(n))
	}
	car.Reset()
	return err
}
