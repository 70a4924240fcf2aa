package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/execgate/execgate/ports"
)

// InstanceDirectory is an in-memory ports.InstanceDirectory for tests
// and single-node deployments where instances come from configuration.
type InstanceDirectory struct {
	mu        sync.RWMutex
	instances map[string]ports.Instance
}

// NewInstanceDirectory creates a directory seeded with the given instances.
func NewInstanceDirectory(instances ...ports.Instance) *InstanceDirectory {
	d := &InstanceDirectory{instances: make(map[string]ports.Instance, len(instances))}
	for _, inst := range instances {
		d.instances[inst.ID] = inst
	}
	return d
}

// Register adds or replaces an instance.
func (d *InstanceDirectory) Register(inst ports.Instance) {
	d.mu.Lock()
	d.instances[inst.ID] = inst
	d.mu.Unlock()
}

// Lookup resolves an instance identifier.
func (d *InstanceDirectory) Lookup(ctx context.Context, instanceID string) (ports.Instance, error) {
	d.mu.RLock()
	inst, ok := d.instances[instanceID]
	d.mu.RUnlock()
	if !ok {
		return ports.Instance{}, fmt.Errorf("%w: %q", ports.ErrInstanceNotFound, instanceID)
	}
	return inst, nil
}

// Ensure interface compliance.
var _ ports.InstanceDirectory = (*InstanceDirectory)(nil)
