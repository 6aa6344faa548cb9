package sim

import (
	"fmt"
	"strings"
)

// ConfigurationError reports every rule a ServiceConfig violated.
// A deploy that fails with this error leaves the registry untouched.
type ConfigurationError struct {
	ServiceID  string
	Violations []string
}

func (e *ConfigurationError) Error() string {
	subject := "service config"
	if e.ServiceID != "" {
		subject = fmt.Sprintf("service config %q", e.ServiceID)
	}
	return fmt.Sprintf("invalid %s: %s", subject, strings.Join(e.Violations, "; "))
}

// newConfigurationError returns nil when there are no violations.
func newConfigurationError(id string, violations []string) error {
	if len(violations) == 0 {
		return nil
	}
	return &ConfigurationError{ServiceID: id, Violations: violations}
}
