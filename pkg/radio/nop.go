package radio

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// NopUWB is a UWB stack that only logs. Used when the daemon runs on
// hardware without a ranging radio attached, so BLE pairing still works.
type NopUWB struct {
	Logger *logrus.Logger
}

func (n *NopUWB) BeginRanging(identity string) error {
	if n.Logger != nil {
		n.Logger.WithField("device", identity).Debug("NopUWB: begin ranging")
	}
	return nil
}

func (n *NopUWB) EndRanging(identity string) error {
	if n.Logger != nil {
		n.Logger.WithField("device", identity).Debug("NopUWB: end ranging")
	}
	return nil
}

// NopBLE is a BLE stack that only logs. It never produces events.
type NopBLE struct {
	Logger *logrus.Logger
}

func (n *NopBLE) Advertise(ctx context.Context, name string, interval time.Duration) error {
	if n.Logger != nil {
		n.Logger.WithFields(logrus.Fields{
			"name":     name,
			"interval": interval,
		}).Debug("NopBLE: advertise")
	}
	<-ctx.Done()
	return ctx.Err()
}

func (n *NopBLE) Connect(ctx context.Context, identity string) error {
	if n.Logger != nil {
		n.Logger.WithField("device", identity).Debug("NopBLE: connect")
	}
	return nil
}

func (n *NopBLE) Disconnect(identity string) error {
	if n.Logger != nil {
		n.Logger.WithField("device", identity).Debug("NopBLE: disconnect")
	}
	return nil
}
