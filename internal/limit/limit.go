// Package limit implements the limit-switch debounce and dispatch path:
// an immediate edge interrupt with a fixed lockout window, favoring stop
// latency over time-integration debouncing.
package limit

import (
	"sync/atomic"
)

// Action is what a switch edge should cause, decided at dispatch time by
// whether the machine is homing.
type Action int

const (
	ActionNone Action = iota
	ActionFeedhold       // homing-cycle switch trip: graceful stop
	ActionEmergencyStop  // non-homing switch trip: latched shutdown
)

// Dispatcher owns the per-switch debounce lockouts and fired flags. One
// Dispatcher instance serves all switches in the system.
type Dispatcher struct {
	lockout      []atomic.Int32 // ticks remaining before this switch re-arms
	fired        []atomic.Bool  // read-clear fired flags
	homing       atomic.Bool
	limitThrown  atomic.Bool
	lockoutTicks int32
}

// NewDispatcher constructs a Dispatcher for numSwitches physical inputs.
// lockoutTicks is the debounce window expressed in periodic-tick counts
// (25 ticks at the default 10ms period gives a 250ms lockout).
func NewDispatcher(numSwitches int, lockoutTicks int) *Dispatcher {
	d := &Dispatcher{
		lockout:      make([]atomic.Int32, numSwitches),
		fired:        make([]atomic.Bool, numSwitches),
		lockoutTicks: int32(lockoutTicks),
	}
	return d
}

// SetHoming toggles whether the machine is currently in a homing cycle,
// which changes how OnEdge dispatches a trip: the same physical switch is
// a homing target during homing and an emergency stop at all other times.
func (d *Dispatcher) SetHoming(homing bool) {
	d.homing.Store(homing)
}

// OnEdge is the interrupt-side handler for a limit-switch edge. It drops
// the event if still in lockout, otherwise arms the lockout, records the
// flag, and returns the dispatch action for the caller to act on
// immediately. It never blocks.
func (d *Dispatcher) OnEdge(sw int) Action {
	if sw < 0 || sw >= len(d.lockout) {
		return ActionNone
	}
	if d.lockout[sw].Load() > 0 {
		return ActionNone
	}
	d.lockout[sw].Store(d.lockoutTicks)
	d.fired[sw].Store(true)

	if d.homing.Load() {
		return ActionFeedhold
	}
	d.limitThrown.Store(true)
	return ActionEmergencyStop
}

// Tick decrements every armed lockout counter; run it on the periodic
// housekeeping schedule.
func (d *Dispatcher) Tick() {
	for i := range d.lockout {
		for {
			v := d.lockout[i].Load()
			if v <= 0 {
				break
			}
			if d.lockout[i].CompareAndSwap(v, v-1) {
				break
			}
		}
	}
}

// Fired reports and clears whether switch sw has fired since the last
// call. Read-clear, so a single background reader cannot miss an edge.
func (d *Dispatcher) Fired(sw int) bool {
	if sw < 0 || sw >= len(d.fired) {
		return false
	}
	return d.fired[sw].Swap(false)
}

// LimitThrown reports and clears whether any non-homing trip has
// occurred since the last call.
func (d *Dispatcher) LimitThrown() bool {
	return d.limitThrown.Swap(false)
}

// Reset clears all lockouts and flags, used on controller reset after an
// emergency shutdown.
func (d *Dispatcher) Reset() {
	for i := range d.lockout {
		d.lockout[i].Store(0)
		d.fired[i].Store(false)
	}
	d.limitThrown.Store(false)
}

// NumSwitches returns how many physical switch inputs this dispatcher
// serves.
func (d *Dispatcher) NumSwitches() int { return len(d.lockout) }
