package led

import (
	"errors"
	"testing"

	"github.com/cjeanneret/LotCam/internal/hw/gpio"
)

// recordingDriver records GPIO calls for verification.
type recordingDriver struct {
	calls    []gpioCall
	writeErr error
}

type gpioCall struct {
	op    string
	pin   int
	level gpio.Level
}

func (d *recordingDriver) SetupPin(pin int, mode gpio.PinMode) error {
	d.calls = append(d.calls, gpioCall{op: "setup", pin: pin})
	return nil
}

func (d *recordingDriver) WritePin(pin int, level gpio.Level) error {
	d.calls = append(d.calls, gpioCall{op: "write", pin: pin, level: level})
	return d.writeErr
}

func (d *recordingDriver) Close() error { return nil }

func (d *recordingDriver) writes() []gpioCall {
	var result []gpioCall
	for _, c := range d.calls {
		if c.op == "write" {
			result = append(result, c)
		}
	}
	return result
}

func TestNew_SetsUpPinLow(t *testing.T) {
	drv := &recordingDriver{}
	if _, err := New(drv, 17); err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(drv.calls) != 2 || drv.calls[0].op != "setup" || drv.calls[0].pin != 17 {
		t.Fatalf("calls = %+v, want setup then write on pin 17", drv.calls)
	}
	if drv.calls[1].level != gpio.Low {
		t.Error("LED should start off")
	}
}

func TestDuring_LightsAroundFn(t *testing.T) {
	drv := &recordingDriver{}
	l, err := New(drv, 17)
	if err != nil {
		t.Fatal(err)
	}
	drv.calls = nil

	ran := false
	if err := l.During(func() error {
		ran = true
		w := drv.writes()
		if len(w) != 1 || w[0].level != gpio.High {
			t.Errorf("LED should be on while fn runs, writes = %+v", w)
		}
		return nil
	}); err != nil {
		t.Fatalf("During: %v", err)
	}
	if !ran {
		t.Fatal("fn not called")
	}
	w := drv.writes()
	if len(w) != 2 || w[1].level != gpio.Low {
		t.Errorf("LED should be off afterwards, writes = %+v", w)
	}
}

func TestDuring_FnErrorStillSwitchesOff(t *testing.T) {
	drv := &recordingDriver{}
	l, _ := New(drv, 5)
	drv.calls = nil

	want := errors.New("capture failed")
	if err := l.During(func() error { return want }); !errors.Is(err, want) {
		t.Errorf("err = %v, want %v", err, want)
	}
	w := drv.writes()
	if len(w) != 2 || w[1].level != gpio.Low {
		t.Errorf("LED should be off after failure, writes = %+v", w)
	}
}

func TestDuring_OffErrorReported(t *testing.T) {
	drv := &recordingDriver{}
	l, _ := New(drv, 5)
	drv.writeErr = errors.New("gpio gone")
	if err := l.During(func() error { return nil }); err == nil {
		t.Error("expected LED off error to surface")
	}
}

func TestNilLED_IsNoop(t *testing.T) {
	var l *StatusLED
	if err := l.On(); err != nil {
		t.Errorf("On: %v", err)
	}
	if err := l.Off(); err != nil {
		t.Errorf("Off: %v", err)
	}
	called := false
	if err := l.During(func() error { called = true; return nil }); err != nil || !called {
		t.Errorf("During on nil LED: err=%v called=%v", err, called)
	}
}

func TestWithMockDriver(t *testing.T) {
	drv := gpio.NewMockDriver()
	l, err := New(drv, 22)
	if err != nil {
		t.Fatal(err)
	}
	_ = l.On()
	if drv.PinLevel(22) != gpio.High {
		t.Error("mock pin should be high after On")
	}
	_ = l.Off()
	if drv.PinLevel(22) != gpio.Low {
		t.Error("mock pin should be low after Off")
	}
}
