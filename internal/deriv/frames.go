package deriv

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Request is an outbound payload. The session adds req_id before writing it.
type Request map[string]any

// Response is a successful reply to a Request.
type Response struct {
	ReqID   int64
	MsgType string
	Raw     []byte
}

// Get reads a gjson path from the reply, e.g. "authorize.scopes".
func (r *Response) Get(path string) gjson.Result {
	return gjson.GetBytes(r.Raw, path)
}

// Decode unmarshals the whole reply into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Raw, v); err != nil {
		return fmt.Errorf("decode %s reply: %w", r.MsgType, err)
	}
	return nil
}

var pongFrame = []byte(`{"pong":1}`)

func encodeRequest(id int64, req Request) ([]byte, error) {
	payload := make(map[string]any, len(req)+1)
	for k, v := range req {
		payload[k] = v
	}
	payload["req_id"] = id
	return json.Marshal(payload)
}

type inboundFrame struct {
	reqID   int64
	hasID   bool
	msgType string
	errObj  gjson.Result
	raw     []byte
}

// peekFrame reads the routing fields without decoding the payload.
func peekFrame(data []byte) (inboundFrame, bool) {
	if !gjson.ValidBytes(data) {
		return inboundFrame{}, false
	}
	fields := gjson.GetManyBytes(data, "req_id", "msg_type", "error")
	f := inboundFrame{
		msgType: fields[1].String(),
		errObj:  fields[2],
		raw:     data,
	}
	if fields[0].Type == gjson.Number {
		f.reqID = fields[0].Int()
		f.hasID = true
	}
	return f, true
}

func (f inboundFrame) result() requestResult {
	if f.errObj.Exists() {
		return requestResult{err: &ServerError{
			Code:    f.errObj.Get("code").String(),
			Message: f.errObj.Get("message").String(),
			MsgType: f.msgType,
		}}
	}
	return requestResult{resp: &Response{ReqID: f.reqID, MsgType: f.msgType, Raw: f.raw}}
}
