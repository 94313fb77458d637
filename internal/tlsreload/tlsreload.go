// Package tlsreload serves a TLS key pair from disk and reloads it whenever
// the certificate or key file changes, including when both are symlinks into
// an atomically swapped "..data" directory as in Kubernetes secret volumes.
package tlsreload

import (
	"bytes"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/vertex-rtc/vertex/signaling-relay/internal/metrics"
)

var ErrNoCertificate = errors.New("tlsreload: no certificate loaded")

// Reloader holds the most recently loaded key pair. A reload that fails
// leaves the previous pair in service.
type Reloader struct {
	certFile string
	keyFile  string
	log      *slog.Logger
	metrics  *metrics.Metrics

	cert    atomic.Pointer[tls.Certificate]
	watcher *fsnotify.Watcher

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
}

// New loads certFile and keyFile and starts watching the directories that
// contain them. Directories are watched rather than the files so that
// replacements by rename are seen.
func New(certFile, keyFile string, logger *slog.Logger, m *metrics.Metrics) (*Reloader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	certFile, err := filepath.Abs(certFile)
	if err != nil {
		return nil, fmt.Errorf("tlsreload: cert path: %w", err)
	}
	keyFile, err = filepath.Abs(keyFile)
	if err != nil {
		return nil, fmt.Errorf("tlsreload: key path: %w", err)
	}

	r := &Reloader{
		certFile: certFile,
		keyFile:  keyFile,
		log:      logger,
		metrics:  m,
		closed:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	if _, err := r.reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("tlsreload: create watcher: %w", err)
	}
	for _, dir := range uniqueDirs(certFile, keyFile) {
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return nil, fmt.Errorf("tlsreload: watch %s: %w", dir, err)
		}
	}
	r.watcher = watcher

	go r.watchLoop()
	return r, nil
}

// GetCertificate is suitable for tls.Config.GetCertificate.
func (r *Reloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	cert := r.cert.Load()
	if cert == nil {
		return nil, ErrNoCertificate
	}
	return cert, nil
}

// TLSConfig returns a server config that always presents the latest pair.
func (r *Reloader) TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: r.GetCertificate,
	}
}

// Close stops watching. The last loaded pair remains available.
func (r *Reloader) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.closed)
		err = r.watcher.Close()
		<-r.done
	})
	return err
}

// reload loads the pair and reports whether the leaf certificate differs from
// the one previously in service.
func (r *Reloader) reload() (changed bool, err error) {
	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return false, fmt.Errorf("tlsreload: load key pair: %w", err)
	}
	prev := r.cert.Swap(&cert)
	return prev == nil || !bytes.Equal(prev.Certificate[0], cert.Certificate[0]), nil
}

func (r *Reloader) watchLoop() {
	defer close(r.done)
	for {
		select {
		case <-r.closed:
			return
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if !r.relevant(event) {
				continue
			}
			changed, err := r.reload()
			if err != nil {
				// Writers often replace the two files one at a time; the
				// event for the second file retries.
				r.metrics.Inc(metrics.TLSReloadFailures)
				r.log.Warn("tls key pair reload failed; keeping previous certificate", "file", event.Name, "err", err)
				continue
			}
			if !changed {
				continue
			}
			r.metrics.Inc(metrics.TLSReloads)
			r.log.Info("tls key pair reloaded", "file", event.Name)
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.log.Warn("tls watcher error", "err", err)
		}
	}
}

// relevant matches changes to the two files themselves and the creation or
// rename of a "..": prefixed entry, which is how a secret volume swaps the
// directory its symlinks resolve through.
func (r *Reloader) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return false
	}
	name := filepath.Clean(event.Name)
	if name == r.certFile || name == r.keyFile {
		return true
	}
	return event.Op&(fsnotify.Create|fsnotify.Rename) != 0 && strings.HasPrefix(filepath.Base(name), "..")
}

func uniqueDirs(paths ...string) []string {
	var dirs []string
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		dir := filepath.Dir(p)
		if seen[dir] {
			continue
		}
		seen[dir] = true
		dirs = append(dirs, dir)
	}
	return dirs
}
