package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Request is a wRPC JSON request sent to the node
type Request struct {
	ID     uint64 `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params"`
}

// Response is a wRPC JSON reply. Replies carry the answer in either result
// or params depending on node version.
type Response struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Error  json.RawMessage `json:"error,omitempty"`
}

// RequestID returns the numeric id of the reply, if it carries one
func (r *Response) RequestID() (uint64, bool) {
	raw := bytes.TrimSpace(r.ID)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}
	// Accept both 7 and "7"
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		raw = []byte(s)
	}
	id, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Data returns the answer payload: result if present, else params
func (r *Response) Data() (json.RawMessage, error) {
	if present(r.Result) {
		return r.Result, nil
	}
	if present(r.Params) {
		return r.Params, nil
	}
	return nil, ErrEmptyResponse
}

// rpcError returns the error carried by the reply, if any
func (r *Response) rpcError() error {
	if !present(r.Error) {
		return nil
	}
	var detail struct {
		Message string `json:"message"`
	}
	msg := string(r.Error)
	if err := json.Unmarshal(r.Error, &detail); err == nil && detail.Message != "" {
		msg = detail.Message
	}
	return newError(KindRPC, "call", errors.New(msg))
}

func present(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null")) && !bytes.Equal(raw, []byte("false"))
}

func parseResponse(payload []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, newError(KindDecode, "response", fmt.Errorf("invalid JSON: %w", err))
	}
	return &resp, nil
}
