// Package protocol defines the kapchan service frame and its JSON codec.
//
// A frame on the wire looks like
//
//	{"s": 1, "r": {"t": 4, "b": "..."}, "i": "<request id>"}        request
//	{"s": 1, "r": {"t": 4, "c": 3, "b": "..."}, "i": "<request id>"} response
//
// The key names are shared with the server and must not change. "i" is
// optional in both directions.
package protocol

// Frame is the envelope for every message exchanged over the socket.
// Exactly one of Request and Response is set.
type Frame struct {
	Service   ServiceID
	Request   *Request
	Response  *Response
	RequestID string
}

// Request is the payload of a client-to-server frame.
type Request struct {
	Method MethodID
	Body   string
}

// Response is the payload of a server-to-client frame.
type Response struct {
	Method MethodID
	Code   ResponseCode
	Body   string
}

// Method returns the method id of whichever payload the frame carries.
func (f Frame) Method() MethodID {
	switch {
	case f.Response != nil:
		return f.Response.Method
	case f.Request != nil:
		return f.Request.Method
	default:
		return 0
	}
}

// NewRequest creates a request frame.
func NewRequest(service ServiceID, method MethodID, body string) Frame {
	return Frame{
		Service: service,
		Request: &Request{Method: method, Body: body},
	}
}

// NewResponse creates a response frame.
func NewResponse(service ServiceID, method MethodID, code ResponseCode, body string) Frame {
	return Frame{
		Service:  service,
		Response: &Response{Method: method, Code: code, Body: body},
	}
}

// WithRequestID returns a copy of the frame tagged with a correlation id.
func (f Frame) WithRequestID(id string) Frame {
	f.RequestID = id
	return f
}
