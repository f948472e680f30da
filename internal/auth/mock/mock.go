// Package mock provides an in-memory auth.DeviceStore for tests.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tobiasmeyr/memovox/internal/auth"
)

// DeviceStore is an in-memory implementation of auth.DeviceStore.
type DeviceStore struct {
	mu sync.Mutex

	// Devices maps device ids to stored devices.
	Devices map[string]*auth.Device

	// CreateErr, if non-nil, is returned by every Create call.
	CreateErr error

	// TouchCalls records every device id passed to Touch.
	TouchCalls []string
}

// Compile-time interface check.
var _ auth.DeviceStore = (*DeviceStore)(nil)

// NewDeviceStore returns an empty in-memory device store.
func NewDeviceStore() *DeviceStore {
	return &DeviceStore{Devices: make(map[string]*auth.Device)}
}

// Create implements auth.DeviceStore.
func (m *DeviceStore) Create(_ context.Context, d *auth.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateErr != nil {
		return m.CreateErr
	}
	cp := *d
	m.Devices[d.ID] = &cp
	return nil
}

// Get implements auth.DeviceStore.
func (m *DeviceStore) Get(_ context.Context, id string) (*auth.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.Devices[id]
	if !ok {
		return nil, fmt.Errorf("mock: %q: %w", id, auth.ErrDeviceNotFound)
	}
	cp := *d
	return &cp, nil
}

// Touch implements auth.DeviceStore.
func (m *DeviceStore) Touch(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TouchCalls = append(m.TouchCalls, id)
	if d, ok := m.Devices[id]; ok {
		d.LastSeen = time.Now().UTC()
	}
	return nil
}
