// Package scenario reads timed spawn scripts for the traffic generator.
//
//	name: rush-hour
//	repeat: 2
//	steps:
//	  - at: 0s
//	    direction: north
//	    lane: left
//	  - at: 1.5s
//	    direction: random
//	    count: 4
//	    every: 300ms
package scenario

import (
	"context"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"crossway/internal/domain"
)

const random = "random"

type Scenario struct {
	Name string `yaml:"name"`
	// Repeat plays the steps this many times back to back. Zero means once.
	Repeat int    `yaml:"repeat"`
	Steps  []Step `yaml:"steps"`
}

// Step spawns Count vehicles starting At, Every apart.
type Step struct {
	At        time.Duration `yaml:"at"`
	Direction string        `yaml:"direction"`
	Lane      string        `yaml:"lane,omitempty"`
	Count     int           `yaml:"count,omitempty"`
	Every     time.Duration `yaml:"every,omitempty"`
}

// Spawn is one request at an offset from the start of playback.
type Spawn struct {
	At        time.Duration
	Direction string
	Lane      string
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read scenario")
	}
	s, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "scenario %s", path)
	}
	return s, nil
}

func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrap(err, "decode yaml")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Scenario) Validate() error {
	if len(s.Steps) == 0 {
		return errors.New("no steps")
	}
	if s.Repeat < 0 {
		return errors.Errorf("negative repeat %d", s.Repeat)
	}
	for i := range s.Steps {
		st := &s.Steps[i]
		st.Direction = strings.ToLower(strings.TrimSpace(st.Direction))
		if st.At < 0 || st.Every < 0 || st.Count < 0 {
			return errors.Errorf("step %d: negative timing or count", i)
		}
		if st.Direction != random {
			d, err := domain.ParseDirection(st.Direction)
			if err != nil {
				return errors.Wrapf(err, "step %d", i)
			}
			st.Direction = d.String()
		} else if st.Lane != "" {
			return errors.Errorf("step %d: lane cannot be set for a random spawn", i)
		}
		if st.Lane != "" {
			c, err := domain.ParseLaneClass(st.Lane)
			if err != nil {
				return errors.Wrapf(err, "step %d", i)
			}
			st.Lane = c.String()
		}
	}
	return nil
}

// Duration is the length of one pass through the steps.
func (s *Scenario) Duration() time.Duration {
	var end time.Duration
	for _, st := range s.Steps {
		last := st.At + time.Duration(max(st.Count, 1)-1)*st.Every
		end = max(end, last)
	}
	return end
}

// Expand flattens steps and repeats into spawns ordered by time. Passes are
// separated by one Duration plus a second so the field can drain.
func (s *Scenario) Expand() []Spawn {
	passes := max(s.Repeat, 1)
	period := s.Duration() + time.Second

	var out []Spawn
	for p := 0; p < passes; p++ {
		offset := time.Duration(p) * period
		for _, st := range s.Steps {
			for n := 0; n < max(st.Count, 1); n++ {
				out = append(out, Spawn{
					At:        offset + st.At + time.Duration(n)*st.Every,
					Direction: st.Direction,
					Lane:      st.Lane,
				})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At < out[j].At })
	return out
}

// Play calls fn for each spawn at its offset from now. It stops early when
// ctx is cancelled or fn fails.
func Play(ctx context.Context, spawns []Spawn, fn func(context.Context, Spawn) error) error {
	start := time.Now()
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for _, sp := range spawns {
		if wait := sp.At - time.Since(start); wait > 0 {
			timer.Reset(wait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(ctx, sp); err != nil {
			return errors.Wrapf(err, "spawn at %s", sp.At)
		}
	}
	return nil
}
