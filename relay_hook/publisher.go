package relayhook

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultChannelPrefix = "jobcore:events:"

	// systemChannel carries events for jobs scheduled without a tenant.
	systemChannel = "_system"
)

// RedisPublisher publishes events on Redis pub/sub, one channel per tenant.
type RedisPublisher struct {
	client goredis.UniversalClient
	prefix string
}

// RedisOption configures a RedisPublisher.
type RedisOption func(*RedisPublisher)

// WithChannelPrefix overrides the channel prefix (default "jobcore:events:").
func WithChannelPrefix(prefix string) RedisOption {
	return func(p *RedisPublisher) { p.prefix = prefix }
}

// NewRedisPublisher returns a Publisher on client.
func NewRedisPublisher(client goredis.UniversalClient, opts ...RedisOption) *RedisPublisher {
	p := &RedisPublisher{client: client, prefix: defaultChannelPrefix}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Channel returns the channel events for tenantID are published on.
func (p *RedisPublisher) Channel(tenantID string) string {
	if tenantID == "" {
		tenantID = systemChannel
	}
	return p.prefix + tenantID
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, evt *Event) error {
	data, err := evt.Encode()
	if err != nil {
		return fmt.Errorf("relayhook: encode %s: %w", evt.Type, err)
	}
	if err := p.client.Publish(ctx, p.Channel(evt.TenantID), data).Err(); err != nil {
		return fmt.Errorf("relayhook: publish %s: %w", evt.Type, err)
	}
	return nil
}
