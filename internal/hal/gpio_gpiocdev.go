//go:build linux
// +build linux

package hal

import (
	"context"
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// GpiocdevGPIO implements GPIOProvider using the Linux GPIO character device
// interface via go-gpiocdev. This works on both Pi 4 (gpiochip0) and
// Pi 5 (gpiochip4 / RP1 southbridge), and on any other Linux board exposing
// a /dev/gpiochipN.
type GpiocdevGPIO struct {
	mu       sync.Mutex
	chipName string
	lines    map[int]*gpiocdev.Line
	pinModes map[int]PinMode
	pinPulls map[int]PullMode
	watchers map[int]context.CancelFunc
}

// NewGpiocdevGPIO creates a new GPIO provider for the given chip name.
func NewGpiocdevGPIO(chipName string) (*GpiocdevGPIO, error) {
	// Verify the chip exists by briefly opening and closing it
	c, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("failed to open GPIO chip %s: %w", chipName, err)
	}
	c.Close()

	return &GpiocdevGPIO{
		chipName: chipName,
		lines:    make(map[int]*gpiocdev.Line),
		pinModes: make(map[int]PinMode),
		pinPulls: make(map[int]PullMode),
		watchers: make(map[int]context.CancelFunc),
	}, nil
}

func (g *GpiocdevGPIO) SetMode(pin int, mode PinMode) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.closeLineLocked(pin); err != nil {
		return err
	}

	var opts []gpiocdev.LineReqOption

	if pull, ok := g.pinPulls[pin]; ok {
		opts = append(opts, pullOption(pull))
	}

	switch mode {
	case Input:
		opts = append([]gpiocdev.LineReqOption{gpiocdev.AsInput}, opts...)
		line, err := gpiocdev.RequestLine(g.chipName, pin, opts...)
		if err != nil {
			return fmt.Errorf("failed to request pin %d as input: %w", pin, err)
		}
		g.lines[pin] = line

	case Output:
		opts = append([]gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}, opts...)
		line, err := gpiocdev.RequestLine(g.chipName, pin, opts...)
		if err != nil {
			return fmt.Errorf("failed to request pin %d as output: %w", pin, err)
		}
		g.lines[pin] = line

	default:
		return fmt.Errorf("unsupported pin mode: %v", mode)
	}

	g.pinModes[pin] = mode
	return nil
}

func (g *GpiocdevGPIO) SetPull(pin int, pull PullMode) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.pinPulls[pin] = pull

	_, ok := g.lines[pin]
	if !ok {
		return nil // Pull will be applied when SetMode is called
	}

	mode, modeOk := g.pinModes[pin]
	if !modeOk {
		return nil
	}

	if err := g.closeLineLocked(pin); err != nil {
		return fmt.Errorf("failed to close pin %d for pull reconfigure: %w", pin, err)
	}

	var opts []gpiocdev.LineReqOption
	opts = append(opts, pullOption(pull))

	switch mode {
	case Input:
		opts = append([]gpiocdev.LineReqOption{gpiocdev.AsInput}, opts...)
	case Output:
		opts = append([]gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}, opts...)
	}

	line, err := gpiocdev.RequestLine(g.chipName, pin, opts...)
	if err != nil {
		return fmt.Errorf("failed to re-request pin %d with pull %v: %w", pin, pull, err)
	}
	g.lines[pin] = line

	return nil
}

func (g *GpiocdevGPIO) DigitalRead(pin int) (bool, error) {
	g.mu.Lock()
	line, ok := g.lines[pin]
	g.mu.Unlock()

	if !ok {
		return false, fmt.Errorf("pin %d not initialized", pin)
	}

	val, err := line.Value()
	if err != nil {
		return false, fmt.Errorf("failed to read pin %d: %w", pin, err)
	}
	return val != 0, nil
}

func (g *GpiocdevGPIO) DigitalWrite(pin int, value bool) error {
	g.mu.Lock()
	line, ok := g.lines[pin]
	g.mu.Unlock()

	if !ok {
		return fmt.Errorf("pin %d not initialized", pin)
	}

	v := 0
	if value {
		v = 1
	}
	if err := line.SetValue(v); err != nil {
		return fmt.Errorf("failed to write pin %d: %w", pin, err)
	}
	return nil
}

func (g *GpiocdevGPIO) WatchEdge(pin int, edge EdgeMode, callback func(pin int, value bool)) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if cancel, ok := g.watchers[pin]; ok {
		cancel()
		delete(g.watchers, pin)
	}

	if err := g.closeLineLocked(pin); err != nil {
		return err
	}

	if edge == EdgeNone {
		line, err := gpiocdev.RequestLine(g.chipName, pin, gpiocdev.AsInput)
		if err != nil {
			return fmt.Errorf("failed to request pin %d as input: %w", pin, err)
		}
		g.lines[pin] = line
		g.pinModes[pin] = Input
		return nil
	}

	pinNum := pin // capture for closure
	handler := func(evt gpiocdev.LineEvent) {
		val := evt.Type == gpiocdev.LineEventRisingEdge
		callback(pinNum, val)
	}

	opts := []gpiocdev.LineReqOption{
		gpiocdev.WithEventHandler(handler),
	}

	if pull, ok := g.pinPulls[pin]; ok {
		opts = append(opts, pullOption(pull))
	}

	switch edge {
	case EdgeRising:
		opts = append(opts, gpiocdev.WithRisingEdge)
	case EdgeFalling:
		opts = append(opts, gpiocdev.WithFallingEdge)
	case EdgeBoth:
		opts = append(opts, gpiocdev.WithBothEdges)
	}

	line, err := gpiocdev.RequestLine(g.chipName, pin, opts...)
	if err != nil {
		return fmt.Errorf("failed to watch edge on pin %d: %w", pin, err)
	}
	g.lines[pin] = line
	g.pinModes[pin] = Input

	_, cancel := context.WithCancel(context.Background())
	g.watchers[pin] = cancel

	return nil
}

// ActivePins returns a map of currently configured pins and their modes
func (g *GpiocdevGPIO) ActivePins() map[int]PinMode {
	g.mu.Lock()
	defer g.mu.Unlock()
	result := make(map[int]PinMode, len(g.pinModes))
	for pin, mode := range g.pinModes {
		result[pin] = mode
	}
	return result
}

func (g *GpiocdevGPIO) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for pin, cancel := range g.watchers {
		cancel()
		delete(g.watchers, pin)
	}

	for pin, line := range g.lines {
		line.Close()
		delete(g.lines, pin)
	}

	return nil
}

// closeLineLocked closes the line for the given pin. Must be called with g.mu held.
func (g *GpiocdevGPIO) closeLineLocked(pin int) error {
	if cancel, ok := g.watchers[pin]; ok {
		cancel()
		delete(g.watchers, pin)
	}

	if line, ok := g.lines[pin]; ok {
		line.Close()
		delete(g.lines, pin)
	}

	delete(g.pinModes, pin)
	return nil
}

// pullOption converts a PullMode to a gpiocdev line request option.
func pullOption(pull PullMode) gpiocdev.LineReqOption {
	switch pull {
	case PullUp:
		return gpiocdev.WithPullUp
	case PullDown:
		return gpiocdev.WithPullDown
	default:
		return gpiocdev.WithBiasDisabled
	}
}
