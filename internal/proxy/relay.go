package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"golang.org/x/sync/errgroup"
)

// Side identifies one end of a relayed connection.
type Side int

const (
	ClientSide Side = iota
	UpstreamSide
)

func (s Side) String() string {
	if s == ClientSide {
		return "client"
	}
	return "upstream"
}

// Other returns the opposite side.
func (s Side) Other() Side {
	return 1 - s
}

// readEvent reports that side became readable: n bytes sit in that side's
// chunk, and err is whatever Read returned alongside them.
type readEvent struct {
	side Side
	n    int
	err  error
}

// Relay copies bytes between client and upstream until either side reaches
// EOF or fails, or ctx is done. Reads are at most relayChunkSize bytes and each
// chunk is written in full to the other side before that side is read again.
//
// Relay always closes upstream. The caller owns client and must close it; its
// deadlines are cleared before Relay returns.
func Relay(ctx context.Context, client, upstream net.Conn) error {
	conns := [2]net.Conn{ClientSide: client, UpstreamSide: upstream}
	chunks := [2]*[]byte{getChunk(), getChunk()}
	acks := [2]chan struct{}{make(chan struct{}), make(chan struct{})}
	events := make(chan readEvent)
	done := make(chan struct{})

	var g errgroup.Group
	for _, side := range []Side{ClientSide, UpstreamSide} {
		g.Go(func() error {
			readLoop(side, conns[side], *chunks[side], events, acks[side], done)
			return nil
		})
	}

	// Unblock a write stalled on a peer that stopped reading.
	interrupted := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(interrupted)
		_ = upstream.SetDeadline(time.Unix(1, 0))
		_ = client.SetWriteDeadline(time.Unix(1, 0))
	})

	defer func() {
		if !stop() {
			<-interrupted
			_ = client.SetWriteDeadline(time.Time{})
		}
		close(done)
		_ = upstream.Close()
		// Release the client reader without closing the caller's socket.
		_ = client.SetReadDeadline(time.Unix(1, 0))
		_ = g.Wait()
		_ = client.SetReadDeadline(time.Time{})
		putChunk(chunks[ClientSide])
		putChunk(chunks[UpstreamSide])
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			if ev.n > 0 {
				dst := ev.side.Other()
				if _, err := conns[dst].Write((*chunks[ev.side])[:ev.n]); err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					return fmt.Errorf("write %s: %w", dst, err)
				}
				relayBytes.WithLabelValues(ev.side.String()).Add(float64(ev.n))
			}
			if ev.err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if errors.Is(ev.err, io.EOF) {
					return nil
				}
				return fmt.Errorf("read %s: %w", ev.side, ev.err)
			}
			if ev.n == 0 {
				return nil
			}
			acks[ev.side] <- struct{}{}
		}
	}
}

func readLoop(side Side, conn net.Conn, buf []byte, events chan<- readEvent, ack <-chan struct{}, done <-chan struct{}) {
	for {
		n, err := conn.Read(buf)
		select {
		case events <- readEvent{side: side, n: n, err: err}:
		case <-done:
			return
		}
		if err != nil || n == 0 {
			return
		}
		select {
		case <-ack:
		case <-done:
			return
		}
	}
}
