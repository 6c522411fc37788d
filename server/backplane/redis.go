// Package backplane mirrors broadcast frames through redis pub/sub so that
// agents and sibling server instances can observe a session's traffic.
package backplane

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const channelPrefix = "syncout:session:"

// envelope wraps a frame with its publisher's identity so subscribers can
// discard their own echoes.
type envelope struct {
	Origin string          `json:"origin"`
	Frame  json.RawMessage `json:"frame"`
}

// Redis is a pub/sub backplane. One instance per process.
type Redis struct {
	client *redis.Client
	origin string
}

// New pings the redis server and returns a backplane over it.
func New(ctx context.Context, addr string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Redis{client: client, origin: uuid.NewString()}, nil
}

// Publish mirrors one frame onto the session's channel.
func (b *Redis) Publish(ctx context.Context, sessionID string, frame []byte) error {
	payload, err := json.Marshal(envelope{Origin: b.origin, Frame: frame})
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channelPrefix+sessionID, payload).Err()
}

// Subscribe relays frames published by other instances on the session's
// channel. The returned channel closes when ctx is done.
func (b *Redis) Subscribe(ctx context.Context, sessionID string) <-chan []byte {
	sub := b.client.Subscribe(ctx, channelPrefix+sessionID)
	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		defer sub.Close()
		in := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				var env envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					slog.Warn("backplane: bad envelope", "session", sessionID, "error", err)
					continue
				}
				if env.Origin == b.origin {
					continue
				}
				select {
				case out <- []byte(env.Frame):
				default:
					// Relay is best-effort; a stalled hub sheds frames.
				}
			}
		}
	}()
	return out
}

// Close releases the redis client.
func (b *Redis) Close() error { return b.client.Close() }
