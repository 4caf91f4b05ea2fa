package api

import (
	"log/slog"
	"time"
)

// HTTPServerConfig configures the activation and operator listeners.
type HTTPServerConfig struct {
	// ListenAddr serves the device-facing activation routes and the health endpoints.
	ListenAddr string
	// AdminListenAddr serves the operator routes. Empty mounts them on ListenAddr.
	AdminListenAddr string
	// MetricsAddr serves /metrics. Empty disables the metrics listener.
	MetricsAddr string

	EnablePprof bool
	Log         *slog.Logger

	// DrainDuration is how long /drain holds after flipping readiness off.
	DrainDuration time.Duration
	// GracefulShutdownDuration bounds Shutdown for all listeners.
	GracefulShutdownDuration time.Duration

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}
