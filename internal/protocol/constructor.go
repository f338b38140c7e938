package protocol

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/muurk/simplelink/internal/transport"
)

// Global sequence counter (thread-safe)
var seqCounter uint32

// NextSeq returns a fresh request sequence number. Zero is never returned;
// it marks frames that do not belong to a request.
func NextSeq() uint32 {
	for {
		if seq := atomic.AddUint32(&seqCounter, 1); seq != 0 {
			return seq
		}
	}
}

// NewRequest builds a request frame for op. A nil args sends an empty payload.
func NewRequest(op string, args any) (*Frame, error) {
	payload, err := marshalPayload(args)
	if err != nil {
		return nil, fmt.Errorf("encode %s args: %w", op, err)
	}
	return &Frame{Kind: KindRequest, Seq: NextSeq(), Op: op, Payload: payload}, nil
}

// NewResponse builds the response to req. err is carried as its chip status
// code and message; result is sent alongside it when non-nil, since some
// commands report partial results with a failing status.
func NewResponse(req *Frame, result any, err error) *Frame {
	resp := Response{}
	if err != nil {
		resp.Code = transport.StatusCode(err)
		resp.Error = err.Error()
	}
	if result != nil {
		raw, merr := json.Marshal(result)
		if merr != nil {
			resp.Code = transport.StatusFailure
			resp.Error = fmt.Sprintf("encode %s result: %v", req.Op, merr)
		} else {
			resp.Result = raw
		}
	}

	payload, _ := json.Marshal(resp)
	return &Frame{Kind: KindResponse, Seq: req.Seq, Op: req.Op, Payload: payload}
}

// NewEvent builds an unsolicited event frame.
func NewEvent(ev transport.Event) *Frame {
	payload, _ := json.Marshal(EventPayload{
		Kind:   ev.Kind,
		Socket: ev.Socket,
		Ping:   ev.Ping,
	})
	return &Frame{Kind: KindEvent, Op: ev.Kind.String(), Payload: payload}
}

func marshalPayload(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
