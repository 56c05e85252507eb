package socks5

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// State is a step of the server-side handshake.
type State int

const (
	StateStart State = iota
	StateMethodNegotiation
	StateAuthenticating
	StateAwaitingRequest
	StateResolvingAddress
	StateConnecting
	StateRelaying
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateMethodNegotiation:
		return "method_negotiation"
	case StateAuthenticating:
		return "authenticating"
	case StateAwaitingRequest:
		return "awaiting_request"
	case StateResolvingAddress:
		return "resolving_address"
	case StateConnecting:
		return "connecting"
	case StateRelaying:
		return "relaying"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Dialer opens the outbound connection for a CONNECT request.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// RelayFunc pumps bytes between client and upstream until either side is done.
// It must close upstream before returning.
type RelayFunc func(ctx context.Context, client, upstream net.Conn) error

// Conn drives one client connection through the handshake and into the relay.
// A Conn is used by a single goroutine and is not reusable.
type Conn struct {
	Client net.Conn
	Auth   Authenticator
	Dialer Dialer
	Relay  RelayFunc

	// NegotiationTimeout bounds the handshake up to the CONNECT reply. Zero
	// means handshake reads may block indefinitely.
	NegotiationTimeout time.Duration

	state  State
	target Addr
}

// State returns the current step. After Run returns it is always StateClosed;
// a failure's step is carried by the returned *HandshakeError.
func (c *Conn) State() State {
	return c.state
}

// Target returns the parsed CONNECT destination, if the handshake got that far.
func (c *Conn) Target() Addr {
	return c.target
}

// Run executes the handshake and, on success, the relay. It never closes the
// client connection; that is left to the caller. The returned error reports
// why the connection ended and the state in which it happened.
func (c *Conn) Run(ctx context.Context) error {
	err := c.run(ctx)
	if err != nil {
		err = &HandshakeError{State: c.state, Err: err}
	}
	c.state = StateClosed
	return err
}

func (c *Conn) run(ctx context.Context) error {
	c.state = StateStart

	// The admission check precedes any protocol bytes.
	if err := c.Auth.Admit(c.Client.RemoteAddr()); err != nil {
		return err
	}

	if c.NegotiationTimeout > 0 {
		_ = c.Client.SetDeadline(time.Now().Add(c.NegotiationTimeout))
	}

	var greeting [2]byte
	if _, err := io.ReadFull(c.Client, greeting[:]); err != nil {
		return fmt.Errorf("%w: read greeting: %w", ErrProtocolViolation, err)
	}
	if greeting[0] != Version {
		return fmt.Errorf("%w: version %d", ErrProtocolViolation, greeting[0])
	}

	c.state = StateMethodNegotiation
	methods := make([]byte, int(greeting[1]))
	if _, err := io.ReadFull(c.Client, methods); err != nil {
		return fmt.Errorf("%w: read methods: %w", ErrProtocolViolation, err)
	}

	c.state = StateAuthenticating
	if err := c.Auth.Negotiate(c.Client, methods); err != nil {
		return err
	}

	c.state = StateAwaitingRequest
	var hdr [4]byte
	if _, err := io.ReadFull(c.Client, hdr[:]); err != nil {
		return fmt.Errorf("%w: read request: %w", ErrProtocolViolation, err)
	}
	if hdr[0] != Version {
		return fmt.Errorf("%w: request version %d", ErrProtocolViolation, hdr[0])
	}
	if cmd := hdr[1]; cmd != CmdConnect {
		_ = WriteReply(c.Client, RepCommandNotSupported)
		return fmt.Errorf("%w: %d", ErrUnsupportedCommand, cmd)
	}

	c.state = StateResolvingAddress
	target, err := ReadAddr(c.Client, hdr[3])
	if err != nil {
		if errors.Is(err, ErrUnsupportedAddressType) {
			_ = WriteReply(c.Client, RepAddressNotSupported)
		}
		return err
	}
	c.target = target

	c.state = StateConnecting
	up, err := c.Dialer.DialContext(ctx, "tcp4", target.String())
	if err != nil {
		_ = WriteReply(c.Client, RepGeneralFailure)
		return fmt.Errorf("%w: %s: %w", ErrUpstreamConnect, target, err)
	}
	if err := WriteReply(c.Client, RepSuccess); err != nil {
		_ = up.Close()
		return fmt.Errorf("success reply: %w", err)
	}

	if c.NegotiationTimeout > 0 {
		_ = c.Client.SetDeadline(time.Time{})
	}

	c.state = StateRelaying
	return c.Relay(ctx, c.Client, up)
}

// HandshakeError records the state a connection was in when it failed.
type HandshakeError struct {
	State State
	Err   error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("%s: %v", e.State, e.Err)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}
