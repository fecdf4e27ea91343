package led

import (
	"fmt"

	"github.com/cjeanneret/LotCam/internal/debug"
	"github.com/cjeanneret/LotCam/internal/hw/gpio"
)

// StatusLED is a capture indicator wired to one GPIO output (active HIGH).
// A nil *StatusLED is valid and does nothing, which is what a config
// without status_led.pin produces.
type StatusLED struct {
	gpio gpio.Driver
	pin  int
}

// New configures pin as an output and switches the LED off.
func New(g gpio.Driver, pin int) (*StatusLED, error) {
	if err := g.SetupPin(pin, gpio.Output); err != nil {
		return nil, fmt.Errorf("setup status LED pin %d: %w", pin, err)
	}
	if err := g.WritePin(pin, gpio.Low); err != nil {
		return nil, fmt.Errorf("reset status LED pin %d: %w", pin, err)
	}
	debug.Verbose("Status LED ready on pin %d", pin)
	return &StatusLED{gpio: g, pin: pin}, nil
}

// On lights the LED.
func (l *StatusLED) On() error {
	if l == nil {
		return nil
	}
	return l.gpio.WritePin(l.pin, gpio.High)
}

// Off switches the LED off.
func (l *StatusLED) Off() error {
	if l == nil {
		return nil
	}
	return l.gpio.WritePin(l.pin, gpio.Low)
}

// During lights the LED while fn runs. The LED is switched off even if fn fails;
// fn's error wins over an LED error.
func (l *StatusLED) During(fn func() error) error {
	if err := l.On(); err != nil {
		debug.Error(fmt.Errorf("status LED on: %w", err))
	}
	err := fn()
	if offErr := l.Off(); offErr != nil && err == nil {
		err = offErr
	}
	return err
}
