// Package socks5 implements the server side of the SOCKS5 handshake used by
// socksgate.
//
// It covers the subset of RFC 1928 and RFC 1929 that socksgate speaks:
// method negotiation, optional username/password sub-negotiation, and the
// CONNECT command with IPv4 or domain-name targets. Authentication is
// pluggable through the Authenticator interface. The byte relay that
// follows a successful handshake is supplied by the caller.
//
// The low-level reply encoders come from github.com/txthinking/socks5; this
// package keeps socksgate's fixed reply layout and error taxonomy in one
// place.
package socks5
