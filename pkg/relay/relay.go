// Package relay drives the charger relay and the inverter power pin
// through GPIO. The charger relay is normally closed: a low pin leaves the
// charger connected, so losing the controller fails safe into charging.
package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/battsentry/battsentry/pkg/log"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// Output controls the charger relay and inverter pin.
type Output interface {
	// SetConnected drives the charger relay. Idempotent.
	SetConnected(ctx context.Context, connected bool) error
	// Connected returns the last state written.
	Connected() bool
	// ResetInverter power-cycles the inverter, holding it off for holdFor.
	ResetInverter(ctx context.Context, holdFor time.Duration) error
	Close() error
}

// GPIO is the hardware implementation. Requires host.Init to have run.
type GPIO struct {
	mu        sync.Mutex
	relay     gpio.PinIO
	inverter  gpio.PinIO
	connected bool
}

var _ Output = &GPIO{}

// NewGPIO opens the named pins and drives both low: charger connected,
// inverter on.
func NewGPIO(relayPin, inverterPin string) (*GPIO, error) {
	relay := gpioreg.ByName(relayPin)
	if relay == nil {
		return nil, fmt.Errorf("no such pin %q", relayPin)
	}
	inverter := gpioreg.ByName(inverterPin)
	if inverter == nil {
		return nil, fmt.Errorf("no such pin %q", inverterPin)
	}
	if err := relay.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("initializing relay pin %q: %w", relayPin, err)
	}
	if err := inverter.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("initializing inverter pin %q: %w", inverterPin, err)
	}
	return &GPIO{relay: relay, inverter: inverter, connected: true}, nil
}

// SetConnected implements Output. The pin is written even when the state
// matches, since something else may have touched the hardware.
func (g *GPIO) SetConnected(ctx context.Context, connected bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	level := gpio.High
	if connected {
		level = gpio.Low
	}
	if err := g.relay.Out(level); err != nil {
		return fmt.Errorf("writing relay pin: %w", err)
	}
	if connected != g.connected {
		log.Ctx(ctx).Info("charger relay switched", "connected", connected)
	}
	g.connected = connected
	return nil
}

func (g *GPIO) Connected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connected
}

// ResetInverter implements Output. The inverter pin is driven low again
// even if ctx is canceled mid-hold; an inverter left off is far worse than
// a short reset.
func (g *GPIO) ResetInverter(ctx context.Context, holdFor time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	log.Ctx(ctx).Info("resetting inverter", "holdFor", holdFor)
	if err := g.inverter.Out(gpio.High); err != nil {
		return fmt.Errorf("turning inverter off: %w", err)
	}
	t := time.NewTimer(holdFor)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
	if err := g.inverter.Out(gpio.Low); err != nil {
		return fmt.Errorf("turning inverter back on: %w", err)
	}
	return ctx.Err()
}

// Close reconnects the charger and leaves the inverter on. Called on
// shutdown so an idle controller never strands the bank without charge.
func (g *GPIO) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.relay.Out(gpio.Low); err != nil {
		return fmt.Errorf("failing safe relay pin: %w", err)
	}
	g.connected = true
	return g.inverter.Out(gpio.Low)
}
