package socks5

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"

	txsocks5 "github.com/txthinking/socks5"
)

// Authenticator decides whether a connection may proceed past method
// negotiation.
//
// Admit runs before any protocol byte is read or written. Negotiate runs after
// the client's offered methods have been read; it writes the method selection
// and performs any sub-negotiation. A nil error grants access; denials wrap
// ErrAuthDenied.
type Authenticator interface {
	Admit(remote net.Addr) error
	Negotiate(rw io.ReadWriter, offered []byte) error
}

// IPAllowlist reports whether a client IP may connect.
type IPAllowlist interface {
	Contains(ip string) bool
}

// AllowlistAuthenticator requires no credentials but only admits clients whose
// source IP is in the allow-list.
type AllowlistAuthenticator struct {
	Allowlist IPAllowlist
}

// NewAllowlistAuthenticator creates an Authenticator gated on allowlist.
func NewAllowlistAuthenticator(allowlist IPAllowlist) *AllowlistAuthenticator {
	return &AllowlistAuthenticator{Allowlist: allowlist}
}

// Admit checks the remote IP against the allow-list.
func (a *AllowlistAuthenticator) Admit(remote net.Addr) error {
	ip := remoteIP(remote)
	if ip == "" || a.Allowlist == nil || !a.Allowlist.Contains(ip) {
		return fmt.Errorf("%w: ip %q not in allow-list", ErrAuthDenied, ip)
	}
	return nil
}

// Negotiate always selects "no authentication required", whatever was offered.
func (a *AllowlistAuthenticator) Negotiate(rw io.ReadWriter, _ []byte) error {
	if err := writeMethod(rw, MethodNone); err != nil {
		return fmt.Errorf("negotiation reply: %w", err)
	}
	return nil
}

// Credentials is a fixed username/password pair.
type Credentials struct {
	Username string
	Password string
}

// UserPassAuthenticator checks RFC 1929 username/password against fixed
// credentials.
type UserPassAuthenticator struct {
	Credentials Credentials
}

// NewUserPassAuthenticator creates an Authenticator accepting only creds.
func NewUserPassAuthenticator(creds Credentials) *UserPassAuthenticator {
	return &UserPassAuthenticator{Credentials: creds}
}

// Admit lets every source address through to negotiation.
func (a *UserPassAuthenticator) Admit(net.Addr) error {
	return nil
}

// Negotiate selects username/password and verifies the sub-negotiation record.
func (a *UserPassAuthenticator) Negotiate(rw io.ReadWriter, offered []byte) error {
	if bytes.IndexByte(offered, MethodUserPass) < 0 {
		_ = writeMethod(rw, MethodNoAcceptable)
		return fmt.Errorf("%w: client does not offer username/password", ErrAuthDenied)
	}
	if err := writeMethod(rw, MethodUserPass); err != nil {
		return fmt.Errorf("negotiation reply: %w", err)
	}

	urq, err := txsocks5.NewUserPassNegotiationRequestFrom(rw)
	switch {
	case errors.Is(err, txsocks5.ErrUserPassVersion), errors.Is(err, txsocks5.ErrBadRequest):
		_ = writeUserPassStatus(rw, txsocks5.UserPassStatusFailure)
		return fmt.Errorf("%w: read userpass: %w", ErrAuthDenied, err)
	case err != nil:
		return fmt.Errorf("%w: read userpass: %w", ErrProtocolViolation, err)
	}

	if string(urq.Uname) != a.Credentials.Username || string(urq.Passwd) != a.Credentials.Password {
		_ = writeUserPassStatus(rw, txsocks5.UserPassStatusFailure)
		return fmt.Errorf("%w: bad credentials for user %q", ErrAuthDenied, urq.Uname)
	}
	if err := writeUserPassStatus(rw, txsocks5.UserPassStatusSuccess); err != nil {
		return fmt.Errorf("write userpass status: %w", err)
	}
	return nil
}

func remoteIP(addr net.Addr) string {
	switch a := addr.(type) {
	case *net.TCPAddr:
		if ip4 := a.IP.To4(); ip4 != nil {
			return ip4.String()
		}
		return a.IP.String()
	case nil:
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return ""
	}
	return host
}
