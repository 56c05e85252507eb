package dialer

import (
	"net"
	"time"
)

// DefaultDialTimeout bounds DNS lookup plus TCP connect for each upstream.
const DefaultDialTimeout = 10 * time.Second

type Config struct {
	DialTimeout time.Duration
	KeepAlive   net.KeepAliveConfig
}
