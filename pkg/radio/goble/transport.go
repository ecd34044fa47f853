// Package goble backs the radio.BLE interface with the go-ble stack.
package goble

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cornelk/hashmap"
	ble "github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/pilotd/pkg/radio"
)

// DialTimeout bounds a single connection attempt at the radio level.
// The controller applies its own, longer attempt deadline on top.
const DialTimeout = 10 * time.Second

// Transport adapts a ble.Device to the radio.BLE command surface and
// turns go-ble callbacks into radio events. All callbacks are delivered
// through the emit function and never touch controller state directly.
type Transport struct {
	dev    ble.Device
	emit   radio.EmitFunc
	logger *logrus.Logger

	// seen caches discovered peers so repeat advertisements update the
	// name without re-announcing the device. Concurrent because go-ble
	// invokes advertisement handlers from its own goroutines.
	seen *hashmap.Map[string, string]

	// clients holds live connections by peer address.
	clients *hashmap.Map[string, ble.Client]
}

// NewTransport creates a transport on the platform BLE device.
func NewTransport(emit radio.EmitFunc, logger *logrus.Logger) (*Transport, error) {
	if logger == nil {
		logger = logrus.New()
	}
	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}
	return &Transport{
		dev:     dev,
		emit:    emit,
		logger:  logger,
		seen:    hashmap.New[string, string](),
		clients: hashmap.New[string, ble.Client](),
	}, nil
}

// Advertise broadcasts the device name until the context is cancelled.
// go-ble fixes the advertising interval at the HCI level; the configured
// interval is logged so a mismatch is visible in diagnostics.
func (t *Transport) Advertise(ctx context.Context, name string, interval time.Duration) error {
	t.logger.WithFields(logrus.Fields{
		"name":     name,
		"interval": interval,
	}).Info("Advertising")

	err := t.dev.AdvertiseNameAndServices(ctx, name)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("advertising failed: %w", err)
	}
	return nil
}

// Scan discovers peers until the context is cancelled, emitting a
// DeviceDiscovered event the first time each peer is seen.
func (t *Transport) Scan(ctx context.Context) error {
	err := t.dev.Scan(ctx, false, t.handleAdvertisement)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("scan failed: %w", err)
	}
	return nil
}

func (t *Transport) handleAdvertisement(adv ble.Advertisement) {
	identity := adv.Addr().String()
	name := adv.LocalName()

	if prev, loaded := t.seen.GetOrInsert(identity, name); loaded {
		if name == "" || name == prev {
			return
		}
		t.seen.Set(identity, name)
		return
	}

	t.logger.WithFields(logrus.Fields{
		"device": identity,
		"name":   name,
		"rssi":   adv.RSSI(),
	}).Info("Discovered device")

	t.emit(radio.Event{
		Kind:     radio.DeviceDiscovered,
		Identity: identity,
		Name:     name,
		At:       time.Now(),
	})
}

// Connect dials the peer in the background. The result is reported
// asynchronously: a DeviceConnected event on success, nothing on failure
// (the controller's attempt deadline covers silent failures).
func (t *Transport) Connect(ctx context.Context, identity string) error {
	go func() {
		dialCtx, cancel := context.WithTimeout(ctx, DialTimeout)
		defer cancel()

		client, err := t.dev.Dial(dialCtx, ble.NewAddr(identity))
		if err != nil {
			t.logger.WithError(err).WithField("device", identity).Warn("Dial failed")
			return
		}

		t.clients.Set(identity, client)
		t.watchDisconnect(identity, client)

		name, _ := t.seen.Get(identity)
		t.emit(radio.Event{
			Kind:     radio.DeviceConnected,
			Identity: identity,
			Name:     name,
			At:       time.Now(),
		})
	}()
	return nil
}

// watchDisconnect emits a DeviceDisconnected event when the link drops.
func (t *Transport) watchDisconnect(identity string, client ble.Client) {
	watcher, ok := client.(interface{ Disconnected() <-chan struct{} })
	if !ok {
		return
	}
	go func() {
		<-watcher.Disconnected()
		t.clients.Del(identity)
		t.emit(radio.Event{
			Kind:     radio.DeviceDisconnected,
			Identity: identity,
			At:       time.Now(),
		})
	}()
}

// Disconnect tears down the link to the peer if one is up.
func (t *Transport) Disconnect(identity string) error {
	client, ok := t.clients.Get(identity)
	if !ok {
		return nil
	}
	t.clients.Del(identity)
	if err := client.CancelConnection(); err != nil {
		return fmt.Errorf("failed to disconnect %s: %w", identity, err)
	}
	return nil
}
