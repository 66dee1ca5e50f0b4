// Package pubsub implements background sync registration on Google Cloud Pub/Sub.
// Register publishes the task name; Run receives it back and invokes the bound handler,
// acking on success and nacking on failure so Pub/Sub redelivers.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gpubsub "cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadcapture/internal/bgsync"
)

const tagAttribute = "sync_tag"

// Config names the topic and subscription carrying registrations.
type Config struct {
	TopicName        string
	SubscriptionName string
	// MinBackoff and MaxBackoff set the subscription retry policy when Ensure creates it.
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// Registrar is a bgsync.Registrar backed by a Pub/Sub topic and subscription.
type Registrar struct {
	topic  *gpubsub.Topic
	sub    *gpubsub.Subscription
	logger *zap.Logger

	mu      sync.RWMutex
	handler bgsync.Handler
}

// New builds a registrar on existing resources. Call Ensure first to create them.
func New(client *gpubsub.Client, cfg Config, logger *zap.Logger) (*Registrar, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client is required")
	}
	if cfg.TopicName == "" || cfg.SubscriptionName == "" {
		return nil, fmt.Errorf("topic and subscription names are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sub := client.Subscription(cfg.SubscriptionName)
	// The coordinator serializes drains anyway; one message at a time keeps nacks meaningful.
	sub.ReceiveSettings.NumGoroutines = 1
	sub.ReceiveSettings.MaxOutstandingMessages = 1
	return &Registrar{
		topic:  client.Topic(cfg.TopicName),
		sub:    sub,
		logger: logger,
	}, nil
}

// Ensure creates the topic and subscription when they do not exist.
func Ensure(ctx context.Context, client *gpubsub.Client, cfg Config) error {
	topic := client.Topic(cfg.TopicName)
	ok, err := topic.Exists(ctx)
	if err != nil {
		return fmt.Errorf("check topic %s: %w", cfg.TopicName, err)
	}
	if !ok {
		if topic, err = client.CreateTopic(ctx, cfg.TopicName); err != nil {
			return fmt.Errorf("create topic %s: %w", cfg.TopicName, err)
		}
	}
	sub := client.Subscription(cfg.SubscriptionName)
	ok, err = sub.Exists(ctx)
	if err != nil {
		return fmt.Errorf("check subscription %s: %w", cfg.SubscriptionName, err)
	}
	if ok {
		return nil
	}
	subCfg := gpubsub.SubscriptionConfig{Topic: topic, AckDeadline: 60 * time.Second}
	if cfg.MinBackoff > 0 && cfg.MaxBackoff >= cfg.MinBackoff {
		subCfg.RetryPolicy = &gpubsub.RetryPolicy{
			MinimumBackoff: cfg.MinBackoff,
			MaximumBackoff: cfg.MaxBackoff,
		}
	}
	if _, err := client.CreateSubscription(ctx, cfg.SubscriptionName, subCfg); err != nil {
		return fmt.Errorf("create subscription %s: %w", cfg.SubscriptionName, err)
	}
	return nil
}

// Bind sets the handler invoked for received registrations.
func (r *Registrar) Bind(h bgsync.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = h
}

// Register publishes tag and waits for the server to accept it.
func (r *Registrar) Register(ctx context.Context, tag string) error {
	res := r.topic.Publish(ctx, &gpubsub.Message{
		Data:       []byte(tag),
		Attributes: map[string]string{tagAttribute: tag},
	})
	if _, err := res.Get(ctx); err != nil {
		return fmt.Errorf("publish sync registration %s: %w", tag, err)
	}
	return nil
}

// Run receives registrations until ctx ends.
func (r *Registrar) Run(ctx context.Context) error {
	err := r.sub.Receive(ctx, func(ctx context.Context, m *gpubsub.Message) {
		tag := m.Attributes[tagAttribute]
		if tag == "" {
			tag = string(m.Data)
		}
		r.mu.RLock()
		handler := r.handler
		r.mu.RUnlock()
		if handler == nil {
			r.logger.Warn("sync registration received before handler bound", zap.String("tag", tag))
			m.Nack()
			return
		}
		if err := handler(ctx, tag); err != nil {
			r.logger.Info("background sync incomplete, requesting redelivery",
				zap.String("tag", tag), zap.String("message_id", m.ID), zap.Error(err))
			m.Nack()
			return
		}
		m.Ack()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("receive sync registrations: %w", err)
	}
	return nil
}

// Close flushes pending publishes.
func (r *Registrar) Close() {
	r.topic.Stop()
}
