package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dalemusser/impacthub/internal/app/system/docstore"
	"github.com/dalemusser/impacthub/internal/domain/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis is a Provider shared by every node pointing at the same Redis.
//
// The signed-in principal lives at auth:session:<sid> (JSON, expiring after
// the session max age) and every change is published on auth:events:<sid>,
// an empty payload meaning signed out. Subscribers therefore see sign-outs
// made on other nodes.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

var _ Provider = (*Redis)(nil)

// NewRedis creates a provider on client. ttl bounds how long a sign-in lasts
// without being renewed.
func NewRedis(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Redis {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Redis{client: client, ttl: ttl, log: logger}
}

func sessionKey(sid string) string { return "auth:session:" + sid }
func eventsChannel(sid string) string { return "auth:events:" + sid }

// SignIn stores p for sid and announces it.
func (r *Redis) SignIn(ctx context.Context, sid string, p models.Principal) error {
	if sid == "" {
		return ErrNoSession
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal principal: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, sessionKey(sid), data, r.ttl)
	pipe.Publish(ctx, eventsChannel(sid), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	return nil
}

// Renew pushes the session's expiry out by the provider TTL.
func (r *Redis) Renew(ctx context.Context, sid string) error {
	return r.client.Expire(ctx, sessionKey(sid), r.ttl).Err()
}

// Current reads the principal signed in to sid. A missing key is (nil, nil).
func (r *Redis) Current(ctx context.Context, sid string) (*models.Principal, error) {
	data, err := r.client.Get(ctx, sessionKey(sid)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodePrincipal(data)
}

func (r *Redis) signOut(ctx context.Context, sid string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, sessionKey(sid))
	pipe.Publish(ctx, eventsChannel(sid), "")
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// Client returns the view of session sid.
func (r *Redis) Client(sid string) Client {
	return &redisClient{r: r, sid: sid}
}

func decodePrincipal(data []byte) (*models.Principal, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var p models.Principal
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode principal: %w", err)
	}
	return &p, nil
}

type redisClient struct {
	r   *Redis
	sid string
}

func (c *redisClient) SignOut(ctx context.Context) error {
	return c.r.signOut(ctx, c.sid)
}

// SubscribeAuthState subscribes to the session channel first and then reads
// the current value, so a change racing the read is still delivered. Read
// failures are logged and reported as signed out; the stream has no error
// path and must never leave a consumer waiting.
func (c *redisClient) SubscribeAuthState(onChange func(*models.Principal)) docstore.Unsubscribe {
	ctx, cancel := context.WithCancel(context.Background())
	log := c.r.log.With(zap.String("sid", c.sid))

	go func() {
		emit := func(p *models.Principal) {
			if ctx.Err() == nil {
				onChange(p)
			}
		}

		ps := c.r.client.Subscribe(ctx, eventsChannel(c.sid))
		defer ps.Close()

		if _, err := ps.Receive(ctx); err != nil {
			if ctx.Err() == nil {
				log.Error("auth channel subscribe failed", zap.Error(err))
				emit(nil)
			}
			return
		}

		cur, err := c.r.Current(ctx, c.sid)
		if err != nil {
			log.Error("auth state read failed", zap.Error(err))
		}
		emit(cur)

		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				p, err := decodePrincipal([]byte(msg.Payload))
				if err != nil {
					log.Warn("dropping malformed auth event", zap.Error(err))
					continue
				}
				emit(p)
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(cancel) }
}
