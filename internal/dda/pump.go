package dda

import (
	"context"
	"time"

	"github.com/tinygo-motion/motioncore/internal/hal"
	"github.com/tinygo-motion/motioncore/internal/prep"
)

// PinMap binds motor indices to GPIO line numbers. Pin assignment is
// board wiring, owned by the caller (cmd/motiond or a board profile), so
// this is the narrow seam the pump needs rather than a pinout table of
// its own.
type PinMap struct {
	Step   []int
	Dir    []int
	Enable []int // optional; -1 entries mean "no enable line"
}

// Pump drives the high-priority side of the pipeline: a ticker at the
// DDA rate calling Runtime.Tick and writing step/dir pulses through a
// hal.GPIOProvider. Everything it does per tick is bounded; the heavy
// numerics stay in the executor and preparer.
type Pump struct {
	rt   *Runtime
	gpio hal.GPIOProvider
	// stepGPIO is an optional direct-register provider for step-pin
	// writes only, where pulse width matters most. Falls back to gpio
	// when nil.
	stepGPIO hal.GPIOProvider
	pins     PinMap
	period   time.Duration

	// segmentBoundary is raised (non-blocking send) each time a
	// segment's ticks are exhausted, waking the executor pump to prepare
	// the next one.
	segmentBoundary chan struct{}

	slot *prep.Slot
}

// NewPump wires a Runtime to a GPIOProvider and a prep.Slot. ddaRateHz is
// the fixed pulse-clock rate.
func NewPump(rt *Runtime, gpio hal.GPIOProvider, pins PinMap, slot *prep.Slot, ddaRateHz float64) *Pump {
	period := time.Duration(1e9 / ddaRateHz)
	if period <= 0 {
		period = time.Microsecond
	}
	return &Pump{
		rt:              rt,
		gpio:            gpio,
		pins:            pins,
		period:          period,
		segmentBoundary: make(chan struct{}, 1),
		slot:            slot,
	}
}

// SegmentBoundary returns the channel the executor pump selects on to
// know when to prepare the next segment.
func (p *Pump) SegmentBoundary() <-chan struct{} { return p.segmentBoundary }

// WithFastStepGPIO installs a faster provider for step-pin pulses,
// leaving dir/enable writes on the original provider. Pass nil to fall
// back to the default provider for everything.
func (p *Pump) WithFastStepGPIO(fast hal.GPIOProvider) *Pump {
	p.stepGPIO = fast
	return p
}

// Run drives the ticker loop until ctx is cancelled. ConfigurePins
// should be called once before Run starts toggling pins on a real
// provider.
func (p *Pump) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.tick()
		}
	}
}

// ConfigurePins sets up the step/dir/enable lines as digital outputs.
func (p *Pump) ConfigurePins() error {
	if p.gpio == nil {
		return nil
	}
	stepProvider := p.gpio
	if p.stepGPIO != nil {
		stepProvider = p.stepGPIO
	}
	for _, pin := range p.pins.Step {
		if err := stepProvider.SetMode(pin, hal.Output); err != nil {
			return err
		}
	}
	for _, pin := range p.pins.Dir {
		if err := p.gpio.SetMode(pin, hal.Output); err != nil {
			return err
		}
	}
	for _, pin := range p.pins.Enable {
		if pin < 0 {
			continue
		}
		if err := p.gpio.SetMode(pin, hal.Output); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pump) tick() {
	if p.rt.SegmentExhausted() {
		p.loadNext()
	}

	events, ok := p.rt.Tick()
	if !ok {
		return
	}
	for _, ev := range events {
		p.pulse(ev)
	}
}

// DrainOnce loads the prepared segment, if any, and runs it to
// exhaustion synchronously, bypassing the ticker. This is the
// cooperative single-step mode used by hosts that pump the pipeline from
// a main loop instead of running the ticker goroutine, and by tests.
// Returns false if nothing was prepared.
func (p *Pump) DrainOnce() bool {
	if !p.rt.SegmentExhausted() {
		// Finish the segment already in flight first.
		for {
			events, ok := p.rt.Tick()
			if !ok {
				break
			}
			for _, ev := range events {
				p.pulse(ev)
			}
		}
	}

	ticks, motors, dwell, ok := p.slot.Take()
	if !ok {
		return false
	}
	p.applyDirections(motors)
	p.rt.LoadSegment(ticks, motors, dwell)
	for {
		events, ok := p.rt.Tick()
		if !ok {
			break
		}
		for _, ev := range events {
			p.pulse(ev)
		}
	}
	return true
}

// loadNext is the loader half of the segment boundary: pick up the prep
// slot if the producer has finished, or stall with a null segment until
// it catches up.
func (p *Pump) loadNext() {
	ticks, motors, dwell, ok := p.slot.Take()
	if !ok {
		p.rt.LoadNullSegment(1)
		p.raiseSegmentBoundary()
		return
	}

	p.applyDirections(motors)
	p.rt.LoadSegment(ticks, motors, dwell)
	p.raiseSegmentBoundary()
}

// applyDirections updates direction pins before the next pulse for any
// motor whose direction flipped at this segment boundary.
func (p *Pump) applyDirections(motors []prep.MotorPrep) {
	if p.gpio == nil {
		return
	}
	for i, m := range motors {
		if m.DirectionChanged && i < len(p.pins.Dir) {
			_ = p.gpio.DigitalWrite(p.pins.Dir[i], m.Direction)
		}
	}
}

func (p *Pump) raiseSegmentBoundary() {
	select {
	case p.segmentBoundary <- struct{}{}:
	default:
		// One pending wakeup is enough for the executor pump to make
		// progress.
	}
}

func (p *Pump) pulse(ev StepEvent) {
	if p.gpio == nil || ev.Motor >= len(p.pins.Step) {
		return
	}
	provider := p.gpio
	if p.stepGPIO != nil {
		provider = p.stepGPIO
	}
	pin := p.pins.Step[ev.Motor]
	_ = provider.DigitalWrite(pin, true)
	_ = provider.DigitalWrite(pin, false)
}
