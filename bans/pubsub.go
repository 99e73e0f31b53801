package bans

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// PubSubPropagator publishes bans to a Pub/Sub topic.
type PubSubPropagator struct {
	topic *pubsub.Topic
}

// NewPubSubPropagator constructs a propagator for topic. A nil topic makes
// Propagate a no-op.
func NewPubSubPropagator(topic *pubsub.Topic) *PubSubPropagator {
	return &PubSubPropagator{topic: topic}
}

// Name implements Propagator.
func (p *PubSubPropagator) Name() string { return "pubsub" }

// Propagate implements Propagator and waits for the server to acknowledge
// the publish.
func (p *PubSubPropagator) Propagate(ctx context.Context, req Request) error {
	if p.topic == nil {
		return nil
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode ban: %w", err)
	}
	_, err = p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"kind":   req.Kind,
			"mask":   req.Mask(),
			"set_by": req.SetBy,
		},
	}).Get(ctx)
	return err
}
