package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/device-activation-backend/interfaces"
)

// MultiStorageBackend implements interfaces.SecretStore over several
// backends. Fetch falls back through the backends in order; Store writes to
// every available backend.
type MultiStorageBackend struct {
	backends []interfaces.SecretStore
	log      *slog.Logger
}

// NewMultiStorageBackend creates a new multi-storage backend with fallback
func NewMultiStorageBackend(backends []interfaces.SecretStore, logger *slog.Logger) *MultiStorageBackend {
	if logger == nil {
		logger = slog.Default()
	}

	return &MultiStorageBackend{
		backends: backends,
		log:      logger,
	}
}

// Fetch returns the secret from the first backend that has it. If every
// reachable backend reports the secret absent, ErrContentNotFound is
// returned so callers can tell a missing secret from an outage.
func (m *MultiStorageBackend) Fetch(ctx context.Context, name string) ([]byte, error) {
	start := time.Now()
	var errs []error
	notFound := 0

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable",
				slog.String("backendName", backend.Name()),
				slog.String("secret", name))
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), interfaces.ErrBackendUnavailable))
			continue
		}

		data, err := backend.Fetch(ctx, name)
		if err == nil {
			m.log.Debug("Fetched secret",
				slog.String("backendName", backend.Name()),
				slog.String("secret", name),
				slog.Duration("duration", time.Since(start)))
			return data, nil
		}

		if errors.Is(err, interfaces.ErrContentNotFound) {
			notFound++
		}
		errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
		m.log.Debug("Failed to fetch from backend",
			slog.String("backendName", backend.Name()),
			slog.String("secret", name),
			"err", err)
	}

	if notFound > 0 && notFound == len(errs) {
		return nil, interfaces.ErrContentNotFound
	}

	m.log.Error("All backends failed to fetch secret",
		slog.String("secret", name),
		slog.Int("failedBackends", len(errs)),
		slog.Duration("duration", time.Since(start)))

	return nil, fmt.Errorf("%w: all backends failed to fetch %s: %w", interfaces.ErrBackendUnavailable, name, errors.Join(errs...))
}

// Store saves data to all available backends. It succeeds if at least one write succeeds.
func (m *MultiStorageBackend) Store(ctx context.Context, name string, data []byte) error {
	var errs []error
	stored := 0

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable", slog.String("backendName", backend.Name()))
			continue
		}

		if err := backend.Store(ctx, name, data); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			m.log.Warn("Failed to store to backend",
				slog.String("backendName", backend.Name()),
				"err", err)
			continue
		}
		stored++
	}

	if stored == 0 {
		return fmt.Errorf("all backends failed to store secret %s: %w", name, errors.Join(errs...))
	}
	return nil
}

// Available checks if any backend is available
func (m *MultiStorageBackend) Available(ctx context.Context) bool {
	for _, backend := range m.backends {
		if backend.Available(ctx) {
			return true
		}
	}
	return false
}

// Name returns the name of this backend
func (m *MultiStorageBackend) Name() string {
	return "multi-storage"
}

// LocationURI returns a combined URI of all backends.
func (m *MultiStorageBackend) LocationURI() string {
	locations := make([]string, 0, len(m.backends))
	for _, backend := range m.backends {
		locations = append(locations, backend.LocationURI())
	}
	return "multi:[" + strings.Join(locations, ",") + "]"
}
