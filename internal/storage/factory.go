// factory.go maps export backend names (local, s3, azure, gcs) to constructor
// functions and dispatches NewStorage calls.
package storage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/schoolbooks/admin-console/internal/config"
)

// FactoryFunc creates a backend from the export configuration
type FactoryFunc func(*config.ExportConfig) (Storage, error)

var factories = make(map[string]FactoryFunc)

// Register registers an export backend factory
func Register(name string, factory FactoryFunc) {
	factories[name] = factory
}

// Backends lists the registered backend names.
func Backends() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewStorage creates the configured export backend, applying the configured prefix.
func NewStorage(cfg *config.ExportConfig) (Storage, error) {
	factory, ok := factories[cfg.Backend]
	if !ok {
		return nil, fmt.Errorf("unsupported export backend: %s (registered: %s)", cfg.Backend, strings.Join(Backends(), ", "))
	}

	s, err := factory(cfg)
	if err != nil {
		return nil, err
	}
	return WithPrefix(s, cfg.Prefix), nil
}
