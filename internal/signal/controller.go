// Package signal implements the traffic-light arbitration for the
// intersection. At most one approach is ever green.
package signal

import (
	"fmt"
	"strings"
	"time"

	"crossway/internal/domain"
)

const (
	DefaultGreenDuration     = 2500 * time.Millisecond
	DefaultClearanceDuration = 1200 * time.Millisecond
)

// Policy selects how the controller picks the next green approach.
type Policy int

const (
	// PolicyAdaptive reacts to approach occupancy.
	PolicyAdaptive Policy = iota
	// PolicyFixed cycles the ring on timers alone.
	PolicyFixed
)

func (p Policy) String() string {
	switch p {
	case PolicyAdaptive:
		return "adaptive"
	case PolicyFixed:
		return "fixed"
	default:
		return "unknown"
	}
}

func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "adaptive", "":
		return PolicyAdaptive, nil
	case "fixed":
		return PolicyFixed, nil
	default:
		return 0, fmt.Errorf("unknown signal policy %q", s)
	}
}

type Config struct {
	Policy    Policy
	Green     time.Duration
	Clearance time.Duration
}

func DefaultConfig() Config {
	return Config{
		Policy:    PolicyAdaptive,
		Green:     DefaultGreenDuration,
		Clearance: DefaultClearanceDuration,
	}
}

// PhaseChange describes a transition of the light configuration.
type PhaseChange struct {
	At      time.Duration
	Green   bool
	Current domain.Direction
	Reason  string
}

// Controller is a cyclic state machine over the four approaches.
// It reads the vehicle set but never modifies it.
type Controller struct {
	cfg Config

	lights     domain.Signals
	current    domain.Direction
	green      bool
	phaseStart time.Duration
	now        time.Duration

	onChange func(PhaseChange)
}

func NewController(cfg Config) *Controller {
	if cfg.Green <= 0 {
		cfg.Green = DefaultGreenDuration
	}
	if cfg.Clearance <= 0 {
		cfg.Clearance = DefaultClearanceDuration
	}
	return &Controller{
		cfg:     cfg,
		current: domain.East,
	}
}

// OnPhaseChange registers fn to be called after every light transition.
func (c *Controller) OnPhaseChange(fn func(PhaseChange)) {
	c.onChange = fn
}

// Update advances the state machine to time now, measured from the
// start of the simulation.
func (c *Controller) Update(vehicles []domain.Vehicle, now time.Duration) {
	c.now = now
	switch c.cfg.Policy {
	case PolicyFixed:
		c.updateFixed()
	default:
		c.updateAdaptive(ActiveApproaches(vehicles))
	}
}

func (c *Controller) updateAdaptive(active [4]bool) {
	count := 0
	only := c.current
	for _, d := range domain.Directions {
		if active[d] {
			count++
			only = d
		}
	}

	switch {
	case count == 0:
		if c.green {
			c.allRed("idle")
		}

	case count == 1:
		if !c.green || c.current != only {
			c.grant(only, "uncontested")
		}

	case c.green:
		if !active[c.current] {
			c.allRed("cleared")
		} else if c.phaseAge() >= c.cfg.Green {
			c.allRed("green timeout")
		}

	default:
		if c.phaseAge() >= c.cfg.Clearance {
			c.grant(c.nextActive(active), "ring")
		}
	}
}

func (c *Controller) updateFixed() {
	if c.green {
		if c.phaseAge() >= c.cfg.Green {
			c.allRed("green timeout")
		}
		return
	}
	if c.phaseAge() >= c.cfg.Clearance {
		c.grant(c.current.Next(), "ring")
	}
}

// nextActive scans the ring starting one step after the current direction
// and wraps back to it.
func (c *Controller) nextActive(active [4]bool) domain.Direction {
	d := c.current
	for range domain.Directions {
		d = d.Next()
		if active[d] {
			return d
		}
	}
	return c.current
}

func (c *Controller) grant(d domain.Direction, reason string) {
	c.lights = domain.Signals{}
	c.lights[d] = true
	c.current = d
	c.green = true
	c.phaseStart = c.now
	c.notify(reason)
}

func (c *Controller) allRed(reason string) {
	c.lights = domain.Signals{}
	c.green = false
	c.phaseStart = c.now
	c.notify(reason)
}

func (c *Controller) notify(reason string) {
	if c.onChange == nil {
		return
	}
	c.onChange(PhaseChange{
		At:      c.now,
		Green:   c.green,
		Current: c.current,
		Reason:  reason,
	})
}

func (c *Controller) phaseAge() time.Duration {
	return c.now - c.phaseStart
}

// Green reports whether the light for d is green.
func (c *Controller) Green(d domain.Direction) bool {
	return c.lights.Green(d)
}

func (c *Controller) Signals() domain.Signals {
	return c.lights
}

func (c *Controller) State() domain.SignalState {
	return domain.SignalState{
		Lights:   c.lights,
		Current:  c.current,
		Green:    c.green,
		PhaseAge: c.phaseAge(),
	}
}

func (c *Controller) Policy() Policy {
	return c.cfg.Policy
}

// ActiveApproaches marks an approach active when at least one vehicle that
// spawned there, has not turned and still heads the way it entered has
// travelled past the midpoint between entry point and stop line.
func ActiveApproaches(vehicles []domain.Vehicle) [4]bool {
	var active [4]bool
	for _, v := range vehicles {
		if v.Turned || v.Direction != v.Origin || !v.Origin.Valid() {
			continue
		}
		a := domain.ApproachFor(v.Origin)
		if a.Travelled(v.Position) > a.Midpoint() {
			active[v.Origin] = true
		}
	}
	return active
}
