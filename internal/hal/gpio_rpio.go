//go:build linux
// +build linux

package hal

import (
	"fmt"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// RpioGPIO implements GPIOProvider over go-rpio's direct /dev/mem
// register access, the lowest-latency write path available for step
// pulses. Edge watching, which go-rpio has no clean API for, is delegated
// to periph.io's driver registry so the limit-switch dispatcher gets a
// true edge wait instead of a busy poll even on the fast-write path.
type RpioGPIO struct {
	mu       sync.Mutex
	opened   bool
	pins     map[int]rpio.Pin
	pinModes map[int]PinMode
	watchers map[int]chan struct{}
}

// NewRpioGPIO opens the /dev/mem register mapping and initializes periph's
// driver registry. Must run as root (or with CAP_SYS_RAWIO) on the target
// board.
func NewRpioGPIO() (*RpioGPIO, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open rpio register map: %w", err)
	}
	if _, err := host.Init(); err != nil {
		rpio.Close()
		return nil, fmt.Errorf("failed to initialize periph host drivers: %w", err)
	}
	return &RpioGPIO{
		opened:   true,
		pins:     make(map[int]rpio.Pin),
		pinModes: make(map[int]PinMode),
		watchers: make(map[int]chan struct{}),
	}, nil
}

func (g *RpioGPIO) SetMode(pin int, mode PinMode) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	p := rpio.Pin(pin)
	switch mode {
	case Input:
		p.Input()
	case Output:
		p.Output()
	default:
		return fmt.Errorf("rpio: unsupported pin mode: %v", mode)
	}
	g.pins[pin] = p
	g.pinModes[pin] = mode
	return nil
}

func (g *RpioGPIO) SetPull(pin int, pull PullMode) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	p := rpio.Pin(pin)
	switch pull {
	case PullUp:
		p.PullUp()
	case PullDown:
		p.PullDown()
	default:
		p.PullOff()
	}
	g.pins[pin] = p
	return nil
}

func (g *RpioGPIO) DigitalRead(pin int) (bool, error) {
	g.mu.Lock()
	p, ok := g.pins[pin]
	g.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("rpio: pin %d not initialized", pin)
	}
	return p.Read() == rpio.High, nil
}

// DigitalWrite is the fast path this provider exists for: a direct
// register write, no syscall per toggle.
func (g *RpioGPIO) DigitalWrite(pin int, value bool) error {
	g.mu.Lock()
	p, ok := g.pins[pin]
	g.mu.Unlock()
	if !ok {
		return fmt.Errorf("rpio: pin %d not initialized", pin)
	}
	if value {
		p.High()
	} else {
		p.Low()
	}
	return nil
}

// WatchEdge resolves the pin through periph's registry and runs a
// WaitForEdge loop in its own goroutine, since go-rpio exposes no
// interrupt-driven edge API of its own.
func (g *RpioGPIO) WatchEdge(pin int, edge EdgeMode, callback func(pin int, value bool)) error {
	periphPin := gpioreg.ByName(fmt.Sprintf("GPIO%d", pin))
	if periphPin == nil {
		return fmt.Errorf("rpio: periph has no registered pin for GPIO%d", pin)
	}

	pull := gpio.PullNoChange
	edgeCfg := gpio.NoEdge
	switch edge {
	case EdgeRising:
		edgeCfg = gpio.RisingEdge
	case EdgeFalling:
		edgeCfg = gpio.FallingEdge
	case EdgeBoth:
		edgeCfg = gpio.BothEdges
	}
	if err := periphPin.In(pull, edgeCfg); err != nil {
		return fmt.Errorf("rpio: configure GPIO%d for edge watch: %w", pin, err)
	}

	g.mu.Lock()
	if stop, ok := g.watchers[pin]; ok {
		close(stop)
	}
	stop := make(chan struct{})
	g.watchers[pin] = stop
	g.mu.Unlock()

	if edge == EdgeNone {
		return nil
	}

	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			if !periphPin.WaitForEdge(-1) {
				return
			}
			callback(pin, periphPin.Read() == gpio.High)
		}
	}()

	return nil
}

func (g *RpioGPIO) ActivePins() map[int]PinMode {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[int]PinMode, len(g.pinModes))
	for k, v := range g.pinModes {
		out[k] = v
	}
	return out
}

func (g *RpioGPIO) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.opened {
		return nil
	}
	for _, stop := range g.watchers {
		close(stop)
	}
	g.watchers = make(map[int]chan struct{})
	g.opened = false
	return rpio.Close()
}
