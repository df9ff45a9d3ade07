package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceIDs(t *testing.T) {
	assert.Equal(t, ServiceID(1), UserService)
	assert.Equal(t, ServiceID(2), BoardService)
	assert.Equal(t, ServiceID(3), ChatService)
	assert.True(t, ChatService.Known())
	assert.False(t, ServiceID(42).Known())
	assert.Equal(t, "service(42)", ServiceID(42).String())
}

func TestResponseCodes(t *testing.T) {
	codes := []ResponseCode{Success, Failure, NotFound, NotAvailable, NotAllowed, Malformatted, InvalidServiceType}
	for i, c := range codes {
		assert.Equal(t, ResponseCode(i+1), c)
	}
	assert.True(t, Success.OK())
	assert.False(t, NotFound.OK())
	assert.Equal(t, "not_found", NotFound.String())
}

// --- Encode tests ---

func TestEncode_Request(t *testing.T) {
	data, err := Encode(NewRequest(UserService, 1, `{"username":"anon"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":1,"r":{"t":1,"b":"{\"username\":\"anon\"}"}}`, string(data))
}

func TestEncode_RequestWithID(t *testing.T) {
	data, err := Encode(NewRequest(BoardService, 2, "").WithRequestID("req-1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":2,"r":{"t":2,"b":""},"i":"req-1"}`, string(data))
}

func TestEncode_Response(t *testing.T) {
	data, err := Encode(NewResponse(UserService, 4, NotFound, "none"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":1,"r":{"t":4,"c":3,"b":"none"}}`, string(data))
}

func TestEncode_EmptyFrame(t *testing.T) {
	_, err := Encode(Frame{Service: ChatService})
	assert.ErrorIs(t, err, ErrEmptyFrame)

	both := Frame{Service: ChatService, Request: &Request{}, Response: &Response{}}
	_, err = Encode(both)
	assert.ErrorIs(t, err, ErrEmptyFrame)
}

// --- Decode tests ---

func TestDecode_Response(t *testing.T) {
	f, err := Decode([]byte(`{"s":1,"r":{"t":4,"c":3,"b":"..."}}`))
	require.NoError(t, err)

	assert.Equal(t, UserService, f.Service)
	assert.Nil(t, f.Request)
	require.NotNil(t, f.Response)
	assert.Equal(t, MethodID(4), f.Response.Method)
	assert.Equal(t, NotFound, f.Response.Code)
	assert.Equal(t, "...", f.Response.Body)
	assert.Equal(t, MethodID(4), f.Method())
	assert.Empty(t, f.RequestID)
}

func TestDecode_Request(t *testing.T) {
	f, err := Decode([]byte(`{"s":3,"r":{"t":1,"b":"hello"},"i":"abc"}`))
	require.NoError(t, err)

	assert.Equal(t, ChatService, f.Service)
	require.NotNil(t, f.Request)
	assert.Nil(t, f.Response)
	assert.Equal(t, MethodID(1), f.Request.Method)
	assert.Equal(t, "hello", f.Request.Body)
	assert.Equal(t, "abc", f.RequestID)
}

func TestDecode_UnknownServiceIsNotAnError(t *testing.T) {
	f, err := Decode([]byte(`{"s":99,"r":{"t":1,"c":1,"b":""}}`))
	require.NoError(t, err)
	assert.Equal(t, ServiceID(99), f.Service)
	assert.False(t, f.Service.Known())
}

func TestDecode_MissingBodyIsEmpty(t *testing.T) {
	f, err := Decode([]byte(`{"s":2,"r":{"t":2,"c":1}}`))
	require.NoError(t, err)
	require.NotNil(t, f.Response)
	assert.Equal(t, "", f.Response.Body)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		field string
	}{
		{"not json", `{{nope`, ""},
		{"array", `[1,2,3]`, ""},
		{"string", `"frame"`, ""},
		{"null", `null`, "s"},
		{"missing service", `{"r":{"t":1,"b":""}}`, "s"},
		{"missing payload", `{"s":1}`, "r"},
		{"payload not object", `{"s":1,"r":"x"}`, "r"},
		{"missing method", `{"s":1,"r":{"b":""}}`, "t"},
		{"float service", `{"s":1.5,"r":{"t":1,"b":""}}`, "s"},
		{"exponent service", `{"s":1e2,"r":{"t":1,"b":""}}`, "s"},
		{"string service", `{"s":"1","r":{"t":1,"b":""}}`, "s"},
		{"float method", `{"s":1,"r":{"t":2.0,"b":""}}`, "t"},
		{"float code", `{"s":1,"r":{"t":2,"c":1.1,"b":""}}`, "c"},
		{"bool code", `{"s":1,"r":{"t":2,"c":true,"b":""}}`, "c"},
		{"numeric body", `{"s":1,"r":{"t":2,"b":5}}`, "b"},
		{"numeric request id", `{"s":1,"r":{"t":2,"b":""},"i":7}`, "i"},
		{"huge service", `{"s":123456789012345678901234567890,"r":{"t":1,"b":""}}`, "s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.input))
			require.Error(t, err)

			var de *DecodeError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tt.field, de.Field)
			assert.Contains(t, err.Error(), "decode frame")
		})
	}
}

func TestDecode_SyntaxErrorUnwraps(t *testing.T) {
	_, err := Decode([]byte(`{"s":`))
	var syntaxErr *json.SyntaxError
	assert.ErrorAs(t, err, &syntaxErr)
}

func TestEncodeDecode_PreservesResponseCode(t *testing.T) {
	in := NewResponse(ChatService, 5, Malformatted, `{"data":["general"]}`).WithRequestID("r-9")
	data, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
