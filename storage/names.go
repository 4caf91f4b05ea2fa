package storage

import (
	"fmt"
	"path"
	"strings"

	"github.com/ruteri/device-activation-backend/interfaces"
)

// validateSecretName rejects names that would escape the backend root.
func validateSecretName(name string) error {
	if name == "" || strings.HasPrefix(name, "/") || path.Clean(name) != name || strings.HasPrefix(name, "..") {
		return fmt.Errorf("%w: invalid secret name %q", interfaces.ErrValidation, name)
	}
	return nil
}
