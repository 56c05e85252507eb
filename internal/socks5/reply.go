package socks5

import (
	"io"

	txsocks5 "github.com/txthinking/socks5"
)

const (
	// Version is the SOCKS protocol version byte.
	Version = txsocks5.Ver

	// CmdConnect is the SOCKS5 CONNECT command value.
	CmdConnect = txsocks5.CmdConnect

	// MethodNone and MethodUserPass are the authentication methods socksgate
	// can select. MethodNoAcceptable rejects the client's whole offer.
	MethodNone         = txsocks5.MethodNone
	MethodUserPass     = txsocks5.MethodUsernamePassword
	MethodNoAcceptable = txsocks5.MethodUnsupportAll
)

// Reply codes written by the server.
const (
	RepSuccess             = txsocks5.RepSuccess
	RepGeneralFailure      = txsocks5.RepServerFailure
	RepCommandNotSupported = txsocks5.RepCommandNotSupported
	RepAddressNotSupported = txsocks5.RepAddressNotSupported
)

// WriteReply writes a reply with the given code. The bound address is always
// 0.0.0.0:0 regardless of the real upstream socket.
func WriteReply(w io.Writer, rep byte) error {
	_, err := txsocks5.NewReply(rep, txsocks5.ATYPIPv4, []byte{0x00, 0x00, 0x00, 0x00}, []byte{0x00, 0x00}).WriteTo(w)
	return err
}

func writeMethod(w io.Writer, method byte) error {
	_, err := txsocks5.NewNegotiationReply(method).WriteTo(w)
	return err
}

func writeUserPassStatus(w io.Writer, status byte) error {
	_, err := txsocks5.NewUserPassNegotiationReply(status).WriteTo(w)
	return err
}
