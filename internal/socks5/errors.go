package socks5

import "errors"

var (
	// ErrProtocolViolation covers bad version bytes and truncated reads. The
	// connection is closed without a reply.
	ErrProtocolViolation = errors.New("socks5: protocol violation")

	// ErrAuthDenied means the authenticator refused the client.
	ErrAuthDenied = errors.New("socks5: access denied")

	// ErrUnsupportedCommand is returned for any command other than CONNECT.
	ErrUnsupportedCommand = errors.New("socks5: command not supported")

	// ErrUnsupportedAddressType is returned for address types other than
	// IPv4 and domain name.
	ErrUnsupportedAddressType = errors.New("socks5: address type not supported")

	// ErrUpstreamConnect wraps outbound dial failures.
	ErrUpstreamConnect = errors.New("socks5: upstream connect failed")
)

// Reason returns a short label for err suitable for logs and metric labels.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAuthDenied):
		return "auth_denied"
	case errors.Is(err, ErrUnsupportedCommand):
		return "unsupported_command"
	case errors.Is(err, ErrUnsupportedAddressType):
		return "unsupported_address_type"
	case errors.Is(err, ErrUpstreamConnect):
		return "upstream_connect"
	case errors.Is(err, ErrProtocolViolation):
		return "protocol_violation"
	default:
		return "other"
	}
}
