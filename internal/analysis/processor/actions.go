package processor

import (
	"context"

	"github.com/tphakala/ambient-go/internal/events"
	"github.com/tphakala/ambient-go/internal/mqtt"
)

// Action is executed for every classified buffer.
type Action interface {
	Execute(ctx context.Context, r *Result) error
	GetDescription() string
}

// HistoryAction records each result in the event history.
type HistoryAction struct {
	History *events.History
}

// NewHistoryAction returns an action appending to h.
func NewHistoryAction(h *events.History) *HistoryAction {
	return &HistoryAction{History: h}
}

// Execute appends the event.
func (a *HistoryAction) Execute(_ context.Context, r *Result) error {
	a.History.Add(r.Event)
	return nil
}

// GetDescription names the action.
func (a *HistoryAction) GetDescription() string {
	return "history"
}

// MqttAction publishes each result with non-empty predictions.
type MqttAction struct {
	Publisher *mqtt.Publisher
}

// NewMqttAction returns an action publishing through p.
func NewMqttAction(p *mqtt.Publisher) *MqttAction {
	return &MqttAction{Publisher: p}
}

// Execute publishes the event.
func (a *MqttAction) Execute(ctx context.Context, r *Result) error {
	return a.Publisher.Publish(ctx, &r.Event)
}

// GetDescription names the action.
func (a *MqttAction) GetDescription() string {
	return "mqtt"
}

// FuncAction adapts a function to an Action.
type FuncAction struct {
	Description string
	Fn          func(ctx context.Context, r *Result) error
}

// Execute calls Fn.
func (a FuncAction) Execute(ctx context.Context, r *Result) error {
	return a.Fn(ctx, r)
}

// GetDescription names the action.
func (a FuncAction) GetDescription() string {
	return a.Description
}
