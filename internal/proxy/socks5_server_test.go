package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/txthinking/socks5"
	"golang.org/x/net/proxy"
	"golang.org/x/sync/errgroup"

	"github.com/die-net/socksgate/internal/dialer"
	gsocks5 "github.com/die-net/socksgate/internal/socks5"
	"github.com/die-net/socksgate/internal/testutil"
)

type staticAllowlist map[string]bool

func (s staticAllowlist) Contains(ip string) bool { return s[ip] }

func startServer(t *testing.T, auth gsocks5.Authenticator) (net.Listener, context.CancelFunc, <-chan error) {
	t.Helper()
	return startServerWithLogger(t, auth, nil)
}

func startServerWithLogger(t *testing.T, auth gsocks5.Authenticator, log *zerolog.Logger) (net.Listener, context.CancelFunc, <-chan error) {
	t.Helper()

	cfg := Config{
		Auth:   auth,
		Dialer: dialer.NewDirectDialer(dialer.Config{DialTimeout: 2 * time.Second}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	ln, err := ListenTCP(ctx, "tcp4", "127.0.0.1:0", net.KeepAliveConfig{Enable: false})
	if err != nil {
		t.Fatal(err)
	}

	srv := NewSOCKS5Server(ctx, cfg, log)
	served := make(chan error, 1)
	stopped := make(chan struct{})
	go func() {
		served <- srv.Serve(ln)
		close(stopped)
	}()

	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return ln, cancel, served
}

func TestSOCKS5ConnectDirect(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	echoLn := testutil.StartEchoTCPServer(t, ctx)
	ln, _, _ := startServer(t, gsocks5.NewAllowlistAuthenticator(staticAllowlist{"127.0.0.1": true}))

	client, err := socks5.NewClient(ln.Addr().String(), "", "", 2, 0)
	if err != nil {
		t.Fatal(err)
	}

	c, err := client.Dial("tcp", echoLn.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	testutil.AssertEcho(t, c, c, []byte("hello"))
	testutil.AssertEcho(t, c, c, []byte("world"))
}

func TestSOCKS5UserPass(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	echoLn := testutil.StartEchoTCPServer(t, ctx)
	auth := gsocks5.NewUserPassAuthenticator(gsocks5.Credentials{Username: "techb", Password: "Tech1324"})
	ln, _, _ := startServer(t, auth)

	tests := []struct {
		name    string
		auth    *proxy.Auth
		target  string
		wantErr bool
	}{
		{name: "granted", auth: &proxy.Auth{User: "techb", Password: "Tech1324"}, target: echoLn.Addr().String()},
		{
			name:   "granted domain",
			auth:   &proxy.Auth{User: "techb", Password: "Tech1324"},
			target: net.JoinHostPort("localhost", strconv.Itoa(echoLn.Addr().(*net.TCPAddr).Port)),
		},
		{name: "bad password", auth: &proxy.Auth{User: "techb", Password: "nope"}, target: echoLn.Addr().String(), wantErr: true},
		{name: "no credentials", target: echoLn.Addr().String(), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := proxy.SOCKS5("tcp", ln.Addr().String(), tt.auth, proxy.Direct)
			if err != nil {
				t.Fatal(err)
			}

			c, err := d.Dial("tcp", tt.target)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			defer c.Close()

			testutil.AssertEcho(t, c, c, []byte("hello "+tt.name))
		})
	}
}

func TestSOCKS5DeniedIPGetsNoBytes(t *testing.T) {
	ln, _, _ := startServer(t, gsocks5.NewAllowlistAuthenticator(staticAllowlist{"192.0.2.1": true}))
	denied := promtestutil.ToFloat64(connectionsClosed.WithLabelValues("auth_denied"))

	c, err := net.Dial("tcp4", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := c.Read(make([]byte, 16))
	if n != 0 || !errors.Is(err, io.EOF) {
		t.Fatalf("read n=%d err=%v, want immediate close", n, err)
	}
	if got := promtestutil.ToFloat64(connectionsClosed.WithLabelValues("auth_denied")); got != denied+1 {
		t.Fatalf("auth_denied closes = %v, want %v", got, denied+1)
	}
}

func TestSOCKS5ConnectRefusedReply(t *testing.T) {
	ln, _, _ := startServer(t, gsocks5.NewAllowlistAuthenticator(staticAllowlist{"127.0.0.1": true}))

	client, err := socks5.NewClient(ln.Addr().String(), "", "", 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := client.Dial("tcp", testutil.ClosedPort(t)); err == nil {
		t.Fatal("expected error")
	}
}

func TestSOCKS5UpstreamCloseClosesClient(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	upLn, waitUp := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
		_, _ = c.Write([]byte("bye"))
	})
	ln, _, _ := startServer(t, gsocks5.NewAllowlistAuthenticator(staticAllowlist{"127.0.0.1": true}))

	d, err := proxy.SOCKS5("tcp", ln.Addr().String(), nil, proxy.Direct)
	if err != nil {
		t.Fatal(err)
	}
	c, err := d.Dial("tcp", upLn.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	got, err := io.ReadAll(c)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "bye" {
		t.Fatalf("got %q", got)
	}
	waitUp()
}

func TestSOCKS5ConcurrentIsolation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	echoLn := testutil.StartEchoTCPServer(t, ctx)
	ln, _, _ := startServer(t, gsocks5.NewAllowlistAuthenticator(staticAllowlist{"127.0.0.1": true, "127.0.0.2": true}))

	sources := []string{"127.0.0.1", "127.0.0.2"}
	for _, src := range sources {
		probe, err := net.ListenTCP("tcp4", &net.TCPAddr{IP: net.ParseIP(src)})
		if err != nil {
			t.Skipf("cannot bind %s: %v", src, err)
		}
		_ = probe.Close()
	}

	var g errgroup.Group
	for _, src := range sources {
		g.Go(func() error {
			fwd := &net.Dialer{LocalAddr: &net.TCPAddr{IP: net.ParseIP(src)}}
			d, err := proxy.SOCKS5("tcp", ln.Addr().String(), nil, fwd)
			if err != nil {
				return err
			}
			c, err := d.Dial("tcp", echoLn.Addr().String())
			if err != nil {
				return fmt.Errorf("%s: %w", src, err)
			}
			defer c.Close()

			for i := range 50 {
				msg := fmt.Sprintf("%s message %d", src, i)
				if _, err := c.Write([]byte(msg)); err != nil {
					return err
				}
				buf := make([]byte, len(msg))
				if _, err := io.ReadFull(c, buf); err != nil {
					return err
				}
				if string(buf) != msg {
					return fmt.Errorf("%s: got %q want %q", src, buf, msg)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestSOCKS5ShutdownInterruptsHandshake(t *testing.T) {
	ln, cancel, served := startServer(t, gsocks5.NewAllowlistAuthenticator(staticAllowlist{"127.0.0.1": true}))

	// A client that connects and never speaks.
	c, err := net.Dial("tcp4", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	time.Sleep(50 * time.Millisecond)

	cancel()
	select {
	case err := <-served:
		if err != nil {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := c.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
		t.Fatalf("client read err=%v want EOF", err)
	}
}

func TestSOCKS5ShutdownWithStalledUpstream(t *testing.T) {
	ctx, cancelUpstream := context.WithCancel(context.Background())
	defer cancelUpstream()

	// An upstream that accepts and never reads.
	upLn, wait := testutil.StartSingleAcceptServer(t, ctx, func(net.Conn) { <-ctx.Done() })
	defer wait()
	defer cancelUpstream()

	ln, cancel, served := startServer(t, gsocks5.NewAllowlistAuthenticator(staticAllowlist{"127.0.0.1": true}))

	d, err := proxy.SOCKS5("tcp", ln.Addr().String(), nil, proxy.Direct)
	if err != nil {
		t.Fatal(err)
	}
	c, err := d.Dial("tcp", upLn.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	fillUntilBlocked(t, c)
	cancel()

	select {
	case err := <-served:
		if err != nil {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSOCKS5ConnectionLogging(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var out syncBuffer
	log := zerolog.New(&out).Level(zerolog.DebugLevel)

	echoLn := testutil.StartEchoTCPServer(t, ctx)
	ln, stop, served := startServerWithLogger(t, gsocks5.NewAllowlistAuthenticator(staticAllowlist{"127.0.0.1": true}), &log)

	d, err := proxy.SOCKS5("tcp", ln.Addr().String(), nil, proxy.Direct)
	if err != nil {
		t.Fatal(err)
	}
	c, err := d.Dial("tcp", echoLn.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEcho(t, c, c, []byte("logged"))
	_ = c.Close()

	stop()
	if err := <-served; err != nil {
		t.Fatalf("Serve returned %v", err)
	}

	logs := out.String()
	for _, want := range []string{
		`"message":"Accepted connection"`,
		`"message":"Connected upstream"`,
		`"target":"` + echoLn.Addr().String() + `"`,
	} {
		if !strings.Contains(logs, want) {
			t.Errorf("logs missing %s:\n%s", want, logs)
		}
	}
}
