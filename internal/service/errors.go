package service

import (
	"fmt"

	"github.com/soyeahso/kapchan/internal/protocol"
)

// ResponseError is a non-success reply from a service.
type ResponseError struct {
	Service protocol.ServiceID
	Method  protocol.MethodID
	Code    protocol.ResponseCode
	Body    string
}

func (e *ResponseError) Error() string {
	msg := fmt.Sprintf("%s method %d: %s", e.Service, e.Method, e.Code)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Check returns a *ResponseError for responses whose code is not Success.
func Check(id protocol.ServiceID, resp protocol.Response) error {
	if resp.Code.OK() {
		return nil
	}
	return &ResponseError{Service: id, Method: resp.Method, Code: resp.Code, Body: resp.Body}
}
