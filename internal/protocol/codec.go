package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// ErrEmptyFrame is returned by Encode for frames that carry no payload or both.
var ErrEmptyFrame = errors.New("frame must carry exactly one of request or response")

// DecodeError reports an inbound frame that could not be parsed. Field names
// the offending wire key when the problem is local to one field.
type DecodeError struct {
	Field  string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := "decode frame: "
	if e.Field != "" {
		msg += fmt.Sprintf("field %q: ", e.Field)
	}
	msg += e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

type wireFrame struct {
	S int         `json:"s"`
	R wirePayload `json:"r"`
	I string      `json:"i,omitempty"`
}

type wirePayload struct {
	T int    `json:"t"`
	C *int   `json:"c,omitempty"`
	B string `json:"b"`
}

// Encode serializes a frame to its canonical wire form.
func Encode(f Frame) ([]byte, error) {
	if (f.Request == nil) == (f.Response == nil) {
		return nil, ErrEmptyFrame
	}

	w := wireFrame{S: int(f.Service), I: f.RequestID}
	if f.Request != nil {
		w.R = wirePayload{T: int(f.Request.Method), B: f.Request.Body}
	} else {
		code := int(f.Response.Code)
		w.R = wirePayload{T: int(f.Response.Method), C: &code, B: f.Response.Body}
	}
	return json.Marshal(w)
}

// Decode parses a wire frame. A payload with a "c" key is a response, one
// without is a request. Unknown service ids are not an error here.
func Decode(data []byte) (Frame, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return Frame{}, &DecodeError{Reason: "not a JSON object", Err: err}
	}

	sRaw, ok := present(top, "s")
	if !ok {
		return Frame{}, &DecodeError{Field: "s", Reason: "missing"}
	}
	service, err := decodeInt("s", sRaw)
	if err != nil {
		return Frame{}, err
	}

	rRaw, ok := present(top, "r")
	if !ok {
		return Frame{}, &DecodeError{Field: "r", Reason: "missing"}
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(rRaw, &payload); err != nil {
		return Frame{}, &DecodeError{Field: "r", Reason: "not an object", Err: err}
	}

	tRaw, ok := present(payload, "t")
	if !ok {
		return Frame{}, &DecodeError{Field: "t", Reason: "missing"}
	}
	method, err := decodeInt("t", tRaw)
	if err != nil {
		return Frame{}, err
	}

	body := ""
	if bRaw, ok := payload["b"]; ok {
		if body, err = decodeString("b", bRaw); err != nil {
			return Frame{}, err
		}
	}

	f := Frame{Service: ServiceID(service)}
	if iRaw, ok := present(top, "i"); ok {
		if f.RequestID, err = decodeString("i", iRaw); err != nil {
			return Frame{}, err
		}
	}

	if cRaw, ok := present(payload, "c"); ok {
		code, err := decodeInt("c", cRaw)
		if err != nil {
			return Frame{}, err
		}
		f.Response = &Response{Method: MethodID(method), Code: ResponseCode(code), Body: body}
		return f, nil
	}

	f.Request = &Request{Method: MethodID(method), Body: body}
	return f, nil
}

// present looks up a key and treats an explicit null like a missing key.
func present(m map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	raw, ok := m[key]
	if !ok {
		return nil, false
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, false
	}
	return raw, true
}

// integerLiteral matches JSON numbers without fraction or exponent.
var integerLiteral = regexp.MustCompile(`^-?(0|[1-9][0-9]*)$`)

func decodeInt(field string, raw json.RawMessage) (int, error) {
	raw = bytes.TrimSpace(raw)
	if !integerLiteral.Match(raw) {
		return 0, &DecodeError{Field: field, Reason: fmt.Sprintf("not an integer: %s", raw)}
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, &DecodeError{Field: field, Reason: "integer out of range", Err: err}
	}
	return n, nil
}

func decodeString(field string, raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return "", &DecodeError{Field: field, Reason: "not a string"}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", &DecodeError{Field: field, Reason: "not a string", Err: err}
	}
	return s, nil
}
