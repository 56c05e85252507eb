package allowlist

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Provider serves Contains from the most recently loaded Set.
type Provider struct {
	path    string
	log     *zerolog.Logger
	current atomic.Pointer[Set]
}

// NewProvider loads path once. A missing or malformed file is logged and
// leaves the provider with an empty set, so every client is denied until a
// valid document appears.
func NewProvider(path string, log *zerolog.Logger) *Provider {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	p := &Provider{path: path, log: log}
	p.current.Store(NewSet(nil, ""))
	if err := p.Reload(); err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to load allow-list, denying all clients")
	}
	return p
}

// Contains reports whether ip is in the current snapshot.
func (p *Provider) Contains(ip string) bool {
	return p.current.Load().Contains(ip)
}

// Snapshot returns the current Set.
func (p *Provider) Snapshot() *Set {
	return p.current.Load()
}

// Reload reads the file again and swaps in the new set. On error the previous
// set stays in place.
func (p *Provider) Reload() error {
	s, err := Load(p.path)
	if err != nil {
		return err
	}
	p.current.Store(s)
	p.log.Info().
		Int("ips", s.Len()).
		Str("updated_at", s.UpdatedAt()).
		Msg("Allow-list loaded")
	return nil
}

// Watch reloads the allow-list whenever its file is written, created or
// renamed into place, until ctx is done. The parent directory is watched so
// that editors and scripts which replace the file atomically are seen.
func (p *Provider) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("allow-list watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(p.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	target := filepath.Clean(p.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return errors.New("allow-list watcher closed")
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := p.Reload(); err != nil {
				p.log.Error().Err(err).Str("path", p.path).Msg("Failed to reload allow-list, keeping previous")
			}
		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("allow-list watcher closed")
			}
			p.log.Error().Err(err).Msg("Allow-list watcher error")
		}
	}
}
