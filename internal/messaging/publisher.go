package messaging

import (
	"context"

	"scalepoll/internal/scale"
)

// ReadingPublisher forwards reported readings to the broker as retained JSON
// so a late subscriber immediately sees the last known weight. The poller
// already filters unchanged readings; everything arriving here gets sent.
type ReadingPublisher struct {
	broker Broker
	topic  string
}

func NewReadingPublisher(broker Broker, deviceName string) *ReadingPublisher {
	return &ReadingPublisher{
		broker: broker,
		topic:  broker.Topic(deviceName, "reading"),
	}
}

func (p *ReadingPublisher) Report(ctx context.Context, r scale.Reading) error {
	return p.broker.PublishJSON(ctx, p.topic, FireAndForget, true, r)
}
