package remote

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Error variables for session and transport failures
var (
	// ErrSessionUnavailable is returned by dependent calls while the session is not authenticated
	ErrSessionUnavailable = errors.New("remote session unavailable")
	// ErrTransportFailure wraps connect, disconnect and network level failures
	ErrTransportFailure = errors.New("remote transport failure")
	// ErrAuthFailure is returned when the service rejects the anonymous logon
	ErrAuthFailure = errors.New("remote logon rejected")
	// ErrAlreadyStarted is returned by Start on a session that has left Disconnected
	ErrAlreadyStarted = errors.New("remote session already started")
)

// DefaultPollInterval is how long one pump iteration waits for events
const DefaultPollInterval = time.Second

// AppID identifies a title in the remote service. Zero means unresolvable.
type AppID uint32

func (id AppID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseAppID parses a decimal app id
func ParseAppID(s string) (AppID, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return AppID(n), nil
}

// State is a session lifecycle state
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateAuthPending
	StateAuthenticated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateAuthPending:
		return "AuthPending"
	case StateAuthenticated:
		return "Authenticated"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Result is a remote result code carried by logon and logoff events
type Result int

// Result codes used by the service
const (
	ResultInvalid              Result = 0
	ResultOK                   Result = 1
	ResultFail                 Result = 2
	ResultNoConnection         Result = 3
	ResultInvalidPassword      Result = 5
	ResultLoggedInElsewhere    Result = 6
	ResultBusy                 Result = 10
	ResultServiceUnavailable   Result = 20
	ResultLogonSessionReplaced Result = 34
	ResultRateLimitExceeded    Result = 84
)

func (r Result) String() string {
	switch r {
	case ResultInvalid:
		return "Invalid"
	case ResultOK:
		return "OK"
	case ResultFail:
		return "Fail"
	case ResultNoConnection:
		return "NoConnection"
	case ResultInvalidPassword:
		return "InvalidPassword"
	case ResultLoggedInElsewhere:
		return "LoggedInElsewhere"
	case ResultBusy:
		return "Busy"
	case ResultServiceUnavailable:
		return "ServiceUnavailable"
	case ResultLogonSessionReplaced:
		return "LogonSessionReplaced"
	case ResultRateLimitExceeded:
		return "RateLimitExceeded"
	default:
		return "Result(" + strconv.Itoa(int(r)) + ")"
	}
}

// EventKind identifies a transport lifecycle event
type EventKind int

const (
	EventConnected EventKind = iota + 1
	EventDisconnected
	EventLoggedOn
	EventLoggedOff
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "Connected"
	case EventDisconnected:
		return "Disconnected"
	case EventLoggedOn:
		return "LoggedOn"
	case EventLoggedOff:
		return "LoggedOff"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one lifecycle notification delivered by a Transport
type Event struct {
	Kind   EventKind
	Result Result
}

func (e Event) String() string {
	if e.Kind == EventLoggedOn || e.Kind == EventLoggedOff {
		return e.Kind.String() + "(" + e.Result.String() + ")"
	}
	return e.Kind.String()
}
