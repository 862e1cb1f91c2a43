// Package command holds the current robot command and the policy that derives it
// from stable verdicts.
package command

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/itohio/goeeg/pkg/smoother"
)

// Well known commands.
const (
	Freeze = "freeze"
	Follow = "follow"
)

// Controller owns the current command. Reads and writes are safe from any goroutine.
type Controller struct {
	current atomic.Pointer[string]

	mu       sync.Mutex
	onChange []func(prev, next string)
}

// NewController creates a controller holding initial.
func NewController(initial string) *Controller {
	c := &Controller{}
	c.current.Store(&initial)
	return c
}

// Current returns the current command.
func (c *Controller) Current() string {
	return *c.current.Load()
}

// Set replaces the command and returns the previous one. Change callbacks run
// only when the value actually changes.
func (c *Controller) Set(cmd string) string {
	prev := *c.current.Swap(&cmd)
	if prev == cmd {
		return prev
	}

	c.mu.Lock()
	callbacks := c.onChange
	c.mu.Unlock()
	for _, fn := range callbacks {
		fn(prev, cmd)
	}
	return prev
}

// OnChange registers a callback invoked with the previous and new command.
func (c *Controller) OnChange(fn func(prev, next string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = append(c.onChange, fn)
}

// Policy maps stable verdicts to commands.
type Policy struct {
	ctrl       *Controller
	onPositive string
	onNegative string
	log        *slog.Logger
}

// NewPolicy creates a policy driving ctrl. Empty commands select Freeze for a
// positive verdict and Follow for a negative one.
func NewPolicy(ctrl *Controller, onPositive, onNegative string, log *slog.Logger) *Policy {
	if onPositive == "" {
		onPositive = Freeze
	}
	if onNegative == "" {
		onNegative = Follow
	}
	if log == nil {
		log = slog.Default()
	}
	return &Policy{
		ctrl:       ctrl,
		onPositive: onPositive,
		onNegative: onNegative,
		log:        log.With("component", "command"),
	}
}

// Apply updates the command from v. Stabilizing verdicts are ignored.
// It reports whether the command changed.
func (p *Policy) Apply(v smoother.Verdict) bool {
	if !v.Stable {
		return false
	}
	next := p.onNegative
	if v.Final == 1 {
		next = p.onPositive
	}
	prev := p.ctrl.Set(next)
	if prev == next {
		return false
	}
	p.log.Info("command changed",
		"from", prev,
		"to", next,
		"confidence", v.Confidence,
		"repeats", v.Repeats,
	)
	return true
}
