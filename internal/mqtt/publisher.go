package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/ambient-go/internal/classifier"
	"github.com/tphakala/ambient-go/internal/errors"
	"github.com/tphakala/ambient-go/internal/events"
	"github.com/tphakala/ambient-go/internal/inference"
	"github.com/tphakala/ambient-go/internal/logger"
	"github.com/tphakala/ambient-go/internal/observability/metrics"
)

// Payload is the JSON document published for each event.
type Payload struct {
	ID          string              `json:"id"`
	Timestamp   time.Time           `json:"timestamp"`
	Device      string              `json:"device"`
	Predictions []PayloadPrediction `json:"predictions"`
	Text        string              `json:"text"`
}

// PayloadPrediction is a single ranked label.
type PayloadPrediction struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Publisher turns classification events into MQTT messages. Labels
// published within the cooldown are left out; an event whose labels are all
// cooling down is not published.
type Publisher struct {
	client  Client
	topic   string
	device  string
	recent  *cache.Cache // label -> last publish time, nil when cooldown is off
	metrics *metrics.MQTTMetrics
	log     logger.Logger
}

// NewPublisher creates a publisher for topic. A zero cooldown publishes
// every event.
func NewPublisher(client Client, topic, device string, cooldown time.Duration, m *metrics.MQTTMetrics) *Publisher {
	p := &Publisher{
		client:  client,
		topic:   topic,
		device:  device,
		metrics: m,
		log:     GetLogger().With(logger.String("topic", topic)),
	}
	if cooldown > 0 {
		p.recent = cache.New(cooldown, 2*cooldown)
	}
	return p
}

// Publish sends e unless it carries no predictions or every label is still
// cooling down.
func (p *Publisher) Publish(ctx context.Context, e *events.Event) error {
	if len(e.Predictions) == 0 {
		return nil
	}

	fresh := p.filterCooldown(e.Predictions)
	if len(fresh) == 0 {
		p.metrics.IncrementMessagesSkipped()
		p.log.Debug("all labels in cooldown, skipping", logger.String("event_id", e.ID.String()))
		return nil
	}

	payload, err := p.encode(e, fresh)
	if err != nil {
		return err
	}

	if err := p.client.Publish(ctx, p.topic, payload); err != nil {
		return err
	}

	if p.recent != nil {
		for i := range fresh {
			p.recent.SetDefault(fresh[i].Label, e.Timestamp)
		}
	}
	return nil
}

func (p *Publisher) filterCooldown(predictions []inference.Prediction) []inference.Prediction {
	if p.recent == nil {
		return predictions
	}
	fresh := make([]inference.Prediction, 0, len(predictions))
	for i := range predictions {
		if _, found := p.recent.Get(predictions[i].Label); found {
			continue
		}
		fresh = append(fresh, predictions[i])
	}
	return fresh
}

func (p *Publisher) encode(e *events.Event, predictions []inference.Prediction) ([]byte, error) {
	msg := Payload{
		ID:          e.ID.String(),
		Timestamp:   e.Timestamp,
		Device:      p.device,
		Predictions: make([]PayloadPrediction, len(predictions)),
		Text:        classifier.FormatPredictions(predictions),
	}
	for i := range predictions {
		msg.Predictions[i] = PayloadPrediction{Label: predictions[i].Label, Score: predictions[i].Score}
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("operation", "marshal_payload").
			Build()
	}
	return data, nil
}

// Close disconnects the underlying client.
func (p *Publisher) Close() {
	p.client.Disconnect()
}
