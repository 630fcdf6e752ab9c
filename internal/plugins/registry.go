// Package plugins implements the static-registration pattern for
// extension modules. Extensions register their tools at process start;
// there is no runtime loading of model-generated code.
package plugins

import (
	"sync"

	"github.com/hearthfire/hearth/internal/tools"
)

// Registrar installs an extension's tools into the registry.
type Registrar func(registry *tools.Registry) error

var (
	mu         sync.Mutex
	registrars []Registrar
)

// Register queues a registrar to run at startup. Call from an extension
// package's init function.
func Register(r Registrar) {
	mu.Lock()
	defer mu.Unlock()
	registrars = append(registrars, r)
}

// Apply runs every queued registrar against the registry, stopping at the
// first failure.
func Apply(registry *tools.Registry) error {
	mu.Lock()
	defer mu.Unlock()
	for _, r := range registrars {
		if err := r(registry); err != nil {
			return err
		}
	}
	return nil
}
