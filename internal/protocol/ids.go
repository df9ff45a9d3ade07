package protocol

import "fmt"

// ServiceID names one of the services multiplexed over the socket.
type ServiceID int

const (
	UserService  ServiceID = 1
	BoardService ServiceID = 2
	ChatService  ServiceID = 3
)

func (s ServiceID) String() string {
	switch s {
	case UserService:
		return "users"
	case BoardService:
		return "boards"
	case ChatService:
		return "chat"
	default:
		return fmt.Sprintf("service(%d)", int(s))
	}
}

// Known reports whether the id belongs to a service this client understands.
func (s ServiceID) Known() bool {
	return s == UserService || s == BoardService || s == ChatService
}

// MethodID selects an operation within a service. Its meaning is owned by the
// service that defines it.
type MethodID int

// ResponseCode is the outcome attached to every response payload.
type ResponseCode int

const (
	Success            ResponseCode = 1
	Failure            ResponseCode = 2
	NotFound           ResponseCode = 3
	NotAvailable       ResponseCode = 4
	NotAllowed         ResponseCode = 5
	Malformatted       ResponseCode = 6
	InvalidServiceType ResponseCode = 7
)

func (c ResponseCode) String() string {
	switch c {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case NotFound:
		return "not_found"
	case NotAvailable:
		return "not_available"
	case NotAllowed:
		return "not_allowed"
	case Malformatted:
		return "malformatted"
	case InvalidServiceType:
		return "invalid_service_type"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// OK reports whether the code signals success.
func (c ResponseCode) OK() bool { return c == Success }
