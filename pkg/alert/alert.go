// Package alert delivers operational notifications when a sync step fails.
package alert

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Notification is the data sent to alert destinations.
type Notification struct {
	Title string    `json:"title"`
	Body  string    `json:"body"`
	Step  string    `json:"step"`
	Cycle string    `json:"cycle"`
	Error string    `json:"error"`
	Time  time.Time `json:"time"`
}

// StepFailure builds the notification for a failed sync step.
func StepFailure(cycle, step string, err error, at time.Time) *Notification {
	return &Notification{
		Title: fmt.Sprintf("hnmirror: %s step failed", step),
		Body:  fmt.Sprintf("cycle %s: %s step failed, the next cycle will retry", cycle, step),
		Step:  step,
		Cycle: cycle,
		Error: err.Error(),
		Time:  at,
	}
}

// Notifier delivers alerts to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// Manager broadcasts notifications to all registered notifiers.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new alert manager.
func NewManager(notifiers []Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return m != nil && len(m.notifiers) > 0
}

// Broadcast sends a notification to all registered notifiers.
func (m *Manager) Broadcast(ctx context.Context, n *Notification) error {
	if !m.HasNotifiers() {
		return nil
	}
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}
