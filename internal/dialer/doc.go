// Package dialer provides the outbound dialer used by socksgate to open the
// upstream TCP connection for a CONNECT request.
package dialer
