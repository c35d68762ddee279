package task

import (
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/zap"
)

const inProcessBuffer = 256

// Queue is the transport jobs travel on.
type Queue struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber

	// Shared is set when several consumers of one topic compete for
	// messages instead of each receiving a copy.
	Shared bool
}

// NewAMQPQueue uses one durable queue per task name.
func NewAMQPQueue(url string, logger *zap.Logger) (*Queue, error) {
	adapter := NewLoggerAdapter(logger)
	config := amqp.NewDurableQueueConfig(url)

	publisher, err := amqp.NewPublisher(config, adapter)
	if err != nil {
		return nil, fmt.Errorf("create amqp publisher: %w", err)
	}

	subscriber, err := amqp.NewSubscriber(config, adapter)
	if err != nil {
		_ = publisher.Close()
		return nil, fmt.Errorf("create amqp subscriber: %w", err)
	}

	return &Queue{
		Publisher:  publisher,
		Subscriber: subscriber,
		Shared:     true,
	}, nil
}

// NewInProcessQueue keeps jobs in memory. Jobs published before a handler
// subscribes are lost.
func NewInProcessQueue(logger *zap.Logger) *Queue {
	channel := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: inProcessBuffer,
	}, NewLoggerAdapter(logger))

	return &Queue{
		Publisher:  channel,
		Subscriber: channel,
	}
}

func (q *Queue) Close() error {
	return errors.Join(q.Publisher.Close(), q.Subscriber.Close())
}
