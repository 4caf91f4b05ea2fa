package storage

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ruteri/device-activation-backend/interfaces"
)

// SecretStoreFactory creates secret stores from location URIs and manages
// multi-backend configurations for redundant storage.
type SecretStoreFactory struct {
	log *slog.Logger
}

var _ interfaces.SecretStoreFactory = (*SecretStoreFactory)(nil)

func NewSecretStoreFactory(logger *slog.Logger) *SecretStoreFactory {
	return &SecretStoreFactory{log: logger}
}

// SecretStoreFor creates a secret store from a location.
//
// Supported schemes:
//   - file:///absolute/path or file://./relative/path
//   - s3://[ACCESS_KEY:SECRET_KEY@]bucket/prefix?region=eu-west-1&endpoint=http://minio:9000
//   - vault://[TOKEN@]host:8200/mount/path?tls=false
func (sf *SecretStoreFactory) SecretStoreFor(location interfaces.StorageBackendLocation) (interfaces.SecretStore, error) {
	switch location.Scheme {
	case "file":
		return sf.createFileBackend(location)
	case "s3":
		return sf.createS3Backend(location)
	case "vault":
		return sf.createVaultBackend(location)
	default:
		return nil, fmt.Errorf("%w: unsupported backend scheme: %s", interfaces.ErrInvalidLocationURI, location.Scheme)
	}
}

// CreateMultiBackend creates a multi-storage backend from a list of
// locations. Locations that fail to initialize are skipped with a warning.
func (sf *SecretStoreFactory) CreateMultiBackend(locations []interfaces.StorageBackendLocation) (interfaces.SecretStore, error) {
	backends := make([]interfaces.SecretStore, 0, len(locations))

	for _, location := range locations {
		backend, err := sf.SecretStoreFor(location)
		if err != nil {
			sf.log.Warn("Failed to create secret store",
				"err", err,
				slog.String("locationURI", location.String()))
			continue
		}
		backends = append(backends, backend)
	}

	if len(backends) == 0 {
		return nil, fmt.Errorf("no valid secret stores created")
	}
	if len(backends) == 1 {
		return backends[0], nil
	}

	return NewMultiStorageBackend(backends, sf.log), nil
}

func (sf *SecretStoreFactory) createFileBackend(location interfaces.StorageBackendLocation) (interfaces.SecretStore, error) {
	sf.log.Debug("Creating file backend", slog.String("uri", location.String()))

	path := location.Path
	if location.Host != "" {
		path = location.Host + "/" + strings.TrimPrefix(path, "/")
	}
	if path == "" {
		return nil, fmt.Errorf("%w: empty path in file URI: %s", interfaces.ErrInvalidLocationURI, location)
	}

	return NewFileBackend(path, sf.log)
}

func (sf *SecretStoreFactory) createS3Backend(location interfaces.StorageBackendLocation) (interfaces.SecretStore, error) {
	sf.log.Debug("Creating S3 backend", slog.String("bucket", location.Host))

	region := location.GetParam("region")
	if region == "" {
		region = "us-east-1"
	}

	var accessKey, secretKey string
	if location.Auth != "" {
		accessKey, secretKey, _ = strings.Cut(location.Auth, ":")
	}

	return NewS3Backend(location.Host, strings.TrimPrefix(location.Path, "/"), region, location.GetParam("endpoint"), accessKey, secretKey, sf.log)
}

func (sf *SecretStoreFactory) createVaultBackend(location interfaces.StorageBackendLocation) (interfaces.SecretStore, error) {
	sf.log.Debug("Creating Vault backend", slog.String("host", location.Host))

	scheme := "https"
	if location.GetParam("tls") == "false" {
		scheme = "http"
	}

	mount, dataPath, _ := strings.Cut(strings.Trim(location.Path, "/"), "/")
	if mount == "" {
		mount = "secret"
	}

	return NewVaultBackend(fmt.Sprintf("%s://%s", scheme, location.Host), mount, dataPath, location.Auth, sf.log)
}
