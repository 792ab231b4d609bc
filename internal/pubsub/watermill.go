package pubsub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// WatermillBridge implements Bus on watermill's in-process GoChannel.
type WatermillBridge struct {
	goChannel *gochannel.GoChannel
	logger    *slog.Logger
	closeOnce sync.Once
	closeErr  error
}

var _ Bus = (*WatermillBridge)(nil)

// Reserved metadata keys. Anything else in Message.Metadata travels as is.
const (
	metaKeyUserID      = "user_id"
	metaKeyTopic       = "topic"
	metaKeyPublishedAt = "published_at"
)

// NewWatermillBridge initializes an in-memory bus. bufferSize is the per
// subscriber output buffer.
func NewWatermillBridge(logger *slog.Logger, bufferSize int64) *WatermillBridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &WatermillBridge{
		goChannel: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: bufferSize},
			watermill.NewStdLogger(false, false),
		),
		logger: logger.With("component", "pubsub"),
	}
}

func toWatermill(msg Message) *message.Message {
	wmMsg := message.NewMessage(watermill.NewUUID(), msg.Payload)
	for k, v := range msg.Metadata {
		wmMsg.Metadata.Set(k, v)
	}
	wmMsg.Metadata.Set(metaKeyUserID, msg.UserID)
	wmMsg.Metadata.Set(metaKeyTopic, msg.Topic)
	wmMsg.Metadata.Set(metaKeyPublishedAt, time.Now().UTC().Format(time.RFC3339Nano))
	return wmMsg
}

func fromWatermill(wmMsg *message.Message) Message {
	msg := Message{
		Topic:    wmMsg.Metadata.Get(metaKeyTopic),
		UserID:   wmMsg.Metadata.Get(metaKeyUserID),
		Payload:  wmMsg.Payload,
		Metadata: make(map[string]string, len(wmMsg.Metadata)),
	}
	if at, err := time.Parse(time.RFC3339Nano, wmMsg.Metadata.Get(metaKeyPublishedAt)); err == nil {
		msg.PublishedAt = at
	}
	for k, v := range wmMsg.Metadata {
		switch k {
		case metaKeyUserID, metaKeyTopic, metaKeyPublishedAt:
		default:
			msg.Metadata[k] = v
		}
	}
	return msg
}

// Publish implements Publisher.
func (wb *WatermillBridge) Publish(ctx context.Context, msg Message) error {
	wmMsg := toWatermill(msg)
	wmMsg.SetContext(ctx)
	return wb.goChannel.Publish(msg.Topic, wmMsg)
}

// Subscribe implements Subscriber. Messages are always acked: events are
// informational and GoChannel would redeliver a nacked message forever.
func (wb *WatermillBridge) Subscribe(ctx context.Context, topic string, handler Handler) error {
	messages, err := wb.goChannel.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}

	go func() {
		for wmMsg := range messages {
			if err := wb.handle(ctx, handler, fromWatermill(wmMsg)); err != nil {
				wb.logger.Error("Failed to handle message", "topic", topic, "msg_id", wmMsg.UUID, "error", err)
			}
			wmMsg.Ack()
		}
		wb.logger.Debug("Subscription message loop ended", "topic", topic)
	}()

	return nil
}

// handle runs one handler call, turning a panic into an error so a bad
// subscriber cannot stop its own delivery loop.
func (wb *WatermillBridge) handle(ctx context.Context, handler Handler, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, msg)
}

// Close shuts the bus down and ends every subscription loop. It is safe to
// call more than once.
func (wb *WatermillBridge) Close() error {
	wb.closeOnce.Do(func() {
		wb.closeErr = wb.goChannel.Close()
	})
	return wb.closeErr
}
