package socks5

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"net/netip"
	"strconv"

	txsocks5 "github.com/txthinking/socks5"
)

// Address types accepted in a request. IPv6 is intentionally absent.
const (
	ATYPIPv4   = txsocks5.ATYPIPv4
	ATYPDomain = txsocks5.ATYPDomain
)

// Addr is the destination of a CONNECT request: either an IPv4 address or a
// domain name, plus a port.
type Addr struct {
	Type   byte
	IP     netip.Addr
	Domain string
	Port   uint16
}

// Host returns the dotted-decimal IP or the domain name.
func (a Addr) Host() string {
	if a.Type == ATYPIPv4 {
		return a.IP.String()
	}
	return a.Domain
}

// String returns host:port, suitable for dialing.
func (a Addr) String() string {
	return net.JoinHostPort(a.Host(), strconv.Itoa(int(a.Port)))
}

// ReadAddr reads DST.ADDR and DST.PORT for the given address type. Address
// types other than IPv4 and domain name fail with ErrUnsupportedAddressType
// before anything further is read.
func ReadAddr(r io.Reader, atyp byte) (Addr, error) {
	a := Addr{Type: atyp}

	switch atyp {
	case ATYPIPv4:
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return Addr{}, fmt.Errorf("%w: read ipv4 address: %w", ErrProtocolViolation, err)
		}
		a.IP = netip.AddrFrom4(b)
	case ATYPDomain:
		var n [1]byte
		if _, err := io.ReadFull(r, n[:]); err != nil {
			return Addr{}, fmt.Errorf("%w: read domain length: %w", ErrProtocolViolation, err)
		}
		b := make([]byte, int(n[0]))
		if _, err := io.ReadFull(r, b); err != nil {
			return Addr{}, fmt.Errorf("%w: read domain: %w", ErrProtocolViolation, err)
		}
		a.Domain = string(b)
	default:
		return Addr{}, fmt.Errorf("%w: %d", ErrUnsupportedAddressType, atyp)
	}

	var p [2]byte
	if _, err := io.ReadFull(r, p[:]); err != nil {
		return Addr{}, fmt.Errorf("%w: read port: %w", ErrProtocolViolation, err)
	}
	a.Port = binary.BigEndian.Uint16(p[:])

	return a, nil
}
