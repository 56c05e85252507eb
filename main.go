package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // Intentionally exposed on debug port.
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/die-net/socksgate/internal/allowlist"
	"github.com/die-net/socksgate/internal/config"
	"github.com/die-net/socksgate/internal/dialer"
	"github.com/die-net/socksgate/internal/logger"
	"github.com/die-net/socksgate/internal/proxy"
	"github.com/die-net/socksgate/internal/socks5"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newFlagSet(cfg *config.Config, configPath *string) *pflag.FlagSet {
	fs := pflag.NewFlagSet("socksgate", pflag.ExitOnError)
	fs.SortFlags = false

	fs.StringVar(configPath, "config", "", "Optional YAML config file; command-line flags override its values")
	fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "SOCKS5 listen address")
	fs.StringVar(&cfg.Auth, "auth", cfg.Auth, "Authentication mode: allowlist (no credentials, source IP must be allow-listed) | userpass (fixed username/password)")
	fs.StringVar(&cfg.AllowlistPath, "allowlist", cfg.AllowlistPath, "Path to the JSON allow-list document ({\"allowed_ips\": [...], \"updated_at\": ...})")
	fs.BoolVar(&cfg.AllowlistWatch, "allowlist-watch", cfg.AllowlistWatch, "Reload the allow-list when its file changes")
	fs.StringVar(&cfg.Username, "username", cfg.Username, "Username accepted in userpass mode")
	fs.StringVar(&cfg.Password, "password", cfg.Password, "Password accepted in userpass mode")
	fs.DurationVar(&cfg.DialTimeout, "dial-timeout", cfg.DialTimeout, "Timeout for outbound DNS lookup and TCP connect")
	fs.DurationVar(&cfg.NegotiationTimeout, "negotiation-timeout", cfg.NegotiationTimeout, "Timeout for the SOCKS5 handshake; 0 waits indefinitely")
	fs.StringVar(&cfg.TCPKeepAlive, "tcp-keepalive", cfg.TCPKeepAlive, "TCP keepalive: on|off|keepidle:keepintvl:keepcnt")
	fs.StringVar(&cfg.DebugListen, "debug-listen", cfg.DebugListen, "Debug HTTP listen address exposing /debug/pprof and /metrics (e.g. 127.0.0.1:6060). Empty disables.")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug | info | warn | error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Console log format: console | json")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Append logs to this file")
	fs.StringVar(&cfg.LogDirectory, "log-directory", cfg.LogDirectory, "Write rolling logs into this directory (ignored when --log-file is set)")

	return fs
}

// loadConfig resolves defaults, then the optional config file, then explicit
// flags, in that order of increasing precedence.
func loadConfig(args []string) (config.Config, error) {
	var configPath string
	probe := config.Default()
	if err := newFlagSet(&probe, &configPath).Parse(args); err != nil {
		return config.Config{}, err
	}

	cfg := config.Default()
	if configPath != "" {
		if err := cfg.ReadFile(configPath); err != nil {
			return config.Config{}, err
		}
	}
	if err := newFlagSet(&cfg, &configPath).Parse(args); err != nil {
		return config.Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func run(args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	log, err := logger.Create(logger.CreateConfig(cfg.LogLevel, cfg.LogFormat == "json", cfg.LogDirectory, cfg.LogFile))
	if err != nil {
		log.Error().Err(err).Msg("Log file unavailable, logging to console only")
	}

	undoMaxprocs, err := maxprocs.Set(maxprocs.Logger(func(format string, a ...any) {
		log.Debug().Msgf(format, a...)
	}))
	defer undoMaxprocs()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to set GOMAXPROCS")
	}

	ka, err := parseTCPKeepAlive(cfg.TCPKeepAlive)
	if err != nil {
		return fmt.Errorf("invalid --tcp-keepalive: %w", err)
	}

	g, ctx := errgroup.WithContext(context.Background())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var auth socks5.Authenticator
	switch cfg.Auth {
	case config.AuthUserPass:
		auth = socks5.NewUserPassAuthenticator(socks5.Credentials{Username: cfg.Username, Password: cfg.Password})
	default:
		provider := allowlist.NewProvider(cfg.AllowlistPath, log)
		if cfg.AllowlistWatch {
			g.Go(func() error {
				if err := provider.Watch(ctx); err != nil {
					log.Error().Err(err).Msg("Allow-list reload disabled")
				}
				return nil
			})
		}
		auth = socks5.NewAllowlistAuthenticator(provider)
	}

	pcfg := proxy.Config{
		Auth:               auth,
		NegotiationTimeout: cfg.NegotiationTimeout,
		Dialer: dialer.NewDirectDialer(dialer.Config{
			DialTimeout: cfg.DialTimeout,
			KeepAlive:   ka,
		}),
	}

	if cfg.DebugListen != "" {
		if err := startDebugServer(ctx, g, cfg.DebugListen, ka, log); err != nil {
			return err
		}
	}

	ln, err := proxy.ListenTCP(ctx, "tcp4", cfg.Listen, ka)
	if err != nil {
		return fmt.Errorf("socks5 listen: %w", err)
	}
	s5 := proxy.NewSOCKS5Server(ctx, pcfg, log)

	g.Go(func() error {
		if err := s5.Serve(ln); err != nil {
			return fmt.Errorf("socks5 serve: %w", err)
		}
		return nil
	})
	log.Info().Str("listen", cfg.Listen).Str("auth", cfg.Auth).Msg("SOCKS5 proxy listening")

	err = g.Wait()
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}

	log.Info().Msg("Shutting down")
	return err
}

func startDebugServer(ctx context.Context, g *errgroup.Group, addr string, ka net.KeepAliveConfig, log *zerolog.Logger) error {
	http.Handle("/metrics", promhttp.Handler())

	debugSrv := &http.Server{Handler: http.DefaultServeMux} //nolint:gosec // Not concerned about timeouts on debug port.
	lc := net.ListenConfig{KeepAliveConfig: ka}
	debugLn, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("debug listen: %w", err)
	}
	context.AfterFunc(ctx, func() {
		_ = debugSrv.Close()
		_ = debugLn.Close()
	})

	g.Go(func() error {
		if err := debugSrv.Serve(debugLn); err != nil {
			return fmt.Errorf("debug serve: %w", err)
		}
		return nil
	})
	log.Info().Str("listen", addr).Msg("Debug listening")
	return nil
}

func parseTCPKeepAlive(s string) (net.KeepAliveConfig, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return net.KeepAliveConfig{}, errors.New("empty")
	}
	if s == "on" {
		return net.KeepAliveConfig{Enable: true}, nil
	}
	if s == "off" {
		return net.KeepAliveConfig{Enable: false}, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return net.KeepAliveConfig{}, errors.New("expected on|off|keepidle:keepintvl:keepcnt")
	}
	keepIdle, err := parsePositiveSeconds(parts[0])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepidle: %w", err)
	}
	keepIntvl, err := parsePositiveSeconds(parts[1])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepintvl: %w", err)
	}
	keepCnt, err := parsePositiveInt(parts[2])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepcnt: %w", err)
	}

	return net.KeepAliveConfig{
		Enable:   true,
		Idle:     keepIdle,
		Interval: keepIntvl,
		Count:    keepCnt,
	}, nil
}

func parsePositiveSeconds(s string) (time.Duration, error) {
	n, err := parsePositiveInt(s)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be > 0")
	}
	return n, nil
}
