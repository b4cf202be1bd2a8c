package protocol

import (
	"errors"
	"fmt"
)

type Status int

const (
	// StatusOK means the peer replied "ok" (or a query returned a value).
	StatusOK Status = iota
	// StatusSent means a streaming command left the socket; no reply is awaited.
	StatusSent
	StatusNack
	StatusTimeout
	StatusTransportError
	StatusDecodeError
	// StatusRateLimited means the pacing gate suppressed a streaming command.
	StatusRateLimited
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusSent:
		return "sent"
	case StatusNack:
		return "nack"
	case StatusTimeout:
		return "timeout"
	case StatusTransportError:
		return "transport_error"
	case StatusDecodeError:
		return "decode_error"
	case StatusRateLimited:
		return "rate_limited"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

var (
	ErrNack      = errors.New("negative acknowledgement")
	ErrTimeout   = errors.New("reply timeout")
	ErrTransport = errors.New("transport failure")
	ErrDecode    = errors.New("undecodable reply")
)

// NackError carries the reply text of a negative acknowledgement.
type NackError struct {
	Reply string
}

func (e *NackError) Error() string {
	return fmt.Sprintf("drone replied %q", e.Reply)
}

func (e *NackError) Unwrap() error {
	return ErrNack
}

// Result is the outcome of a single engine operation.
type Result struct {
	Command  string
	Status   Status
	Reply    string
	Attempts int
	// Cause is the underlying transport or decode error, if any.
	Cause error
}

// OK reports whether the command was positively acknowledged.
func (r Result) OK() bool {
	return r.Status == StatusOK
}

// Err returns nil for OK, Sent and RateLimited results and a classified
// error otherwise.
func (r Result) Err() error {
	switch r.Status {
	case StatusOK, StatusSent, StatusRateLimited:
		return nil
	case StatusNack:
		return fmt.Errorf("%s: %w", r.Command, &NackError{Reply: r.Reply})
	case StatusTimeout:
		return fmt.Errorf("%s: %w", r.Command, ErrTimeout)
	case StatusDecodeError:
		return fmt.Errorf("%s: %w: %v", r.Command, ErrDecode, r.Cause)
	}
	return fmt.Errorf("%s: %w: %v", r.Command, ErrTransport, r.Cause)
}
