package hal

import (
	"fmt"
	"sync"
)

// MockHAL is an in-memory HAL used by tests and by non-Linux development
// hosts that have no real stepper driver attached.
type MockHAL struct {
	gpio *MockGPIO
	info BoardInfo
}

// NewMockHAL creates a MockHAL.
func NewMockHAL() *MockHAL {
	return &MockHAL{
		gpio: &MockGPIO{pins: make(map[int]*MockPin)},
		info: BoardInfo{
			Model:    BoardUnknown,
			Name:     "Mock Board",
			NumGPIO:  40,
			CPUCores: 4,
			RAMSize:  1024,
			GPIOChip: "mock0",
		},
	}
}

func (m *MockHAL) GPIO() GPIOProvider { return m.gpio }
func (m *MockHAL) Info() BoardInfo    { return m.info }
func (m *MockHAL) Close() error       { return m.gpio.Close() }

// MockPin is the simulated state of a single GPIO line.
type MockPin struct {
	mode     PinMode
	pull     PullMode
	value    bool
	edge     EdgeMode
	callback func(pin int, value bool)
}

// MockGPIO is a software GPIO provider backed by a map of simulated pins.
// It additionally exposes InjectEdge so tests can simulate limit-switch
// trips and other external edges without real hardware.
type MockGPIO struct {
	pins map[int]*MockPin
	mu   sync.RWMutex
}

func (g *MockGPIO) SetMode(pin int, mode PinMode) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pins[pin] == nil {
		g.pins[pin] = &MockPin{}
	}
	g.pins[pin].mode = mode
	return nil
}

func (g *MockGPIO) SetPull(pin int, pull PullMode) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pins[pin] == nil {
		g.pins[pin] = &MockPin{}
	}
	g.pins[pin].pull = pull
	return nil
}

func (g *MockGPIO) DigitalRead(pin int) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.pins[pin] == nil {
		return false, fmt.Errorf("pin %d not initialized", pin)
	}
	return g.pins[pin].value, nil
}

func (g *MockGPIO) DigitalWrite(pin int, value bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pins[pin] == nil {
		g.pins[pin] = &MockPin{}
	}
	g.pins[pin].value = value
	return nil
}

func (g *MockGPIO) WatchEdge(pin int, edge EdgeMode, callback func(pin int, value bool)) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pins[pin] == nil {
		g.pins[pin] = &MockPin{}
	}
	g.pins[pin].edge = edge
	g.pins[pin].callback = callback
	return nil
}

func (g *MockGPIO) ActivePins() map[int]PinMode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	result := make(map[int]PinMode, len(g.pins))
	for pin, p := range g.pins {
		result[pin] = p.mode
	}
	return result
}

func (g *MockGPIO) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pins = make(map[int]*MockPin)
	return nil
}

// InjectEdge simulates an external transition on pin, driving it to value
// and firing the registered WatchEdge callback if the transition matches
// the watched edge mode. Test-only entry point for the limit-switch path.
func (g *MockGPIO) InjectEdge(pin int, value bool) {
	g.mu.Lock()
	p, ok := g.pins[pin]
	if !ok {
		p = &MockPin{}
		g.pins[pin] = p
	}
	prev := p.value
	p.value = value
	edge := p.edge
	cb := p.callback
	g.mu.Unlock()

	if cb == nil || prev == value {
		return
	}
	switch edge {
	case EdgeRising:
		if value {
			cb(pin, value)
		}
	case EdgeFalling:
		if !value {
			cb(pin, value)
		}
	case EdgeBoth:
		cb(pin, value)
	}
}
