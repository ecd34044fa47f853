// Package testutils provides fake radio stacks for exercising the core
// without hardware.
package testutils

import (
	"context"
	"sync"
	"time"
)

// FakeBLE records BLE commands and fails them on demand.
type FakeBLE struct {
	mu sync.Mutex

	AdvertiseCalls  []string
	ConnectCalls    []string
	DisconnectCalls []string

	// ConnectErr is returned by every Connect call when set.
	ConnectErr error
}

func (f *FakeBLE) Advertise(ctx context.Context, name string, interval time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AdvertiseCalls = append(f.AdvertiseCalls, name)
	return nil
}

func (f *FakeBLE) Connect(ctx context.Context, identity string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ConnectCalls = append(f.ConnectCalls, identity)
	return f.ConnectErr
}

func (f *FakeBLE) Disconnect(identity string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DisconnectCalls = append(f.DisconnectCalls, identity)
	return nil
}

// Connects returns a copy of the recorded Connect identities.
func (f *FakeBLE) Connects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ConnectCalls...)
}

// FakeUWB records ranging commands and fails them on demand.
type FakeUWB struct {
	mu sync.Mutex

	BeginCalls []string
	EndCalls   []string

	BeginErr error
}

func (f *FakeUWB) BeginRanging(identity string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.BeginCalls = append(f.BeginCalls, identity)
	return f.BeginErr
}

func (f *FakeUWB) EndRanging(identity string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.EndCalls = append(f.EndCalls, identity)
	return nil
}

// Ends returns a copy of the recorded EndRanging identities.
func (f *FakeUWB) Ends() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.EndCalls...)
}
