// Package proxy implements the socksgate listener side: the SOCKS5 accept
// loop, the byte relay that follows a successful handshake, and shared
// connection plumbing such as keepalive listeners and metrics.
package proxy
