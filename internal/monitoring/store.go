package monitoring

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const (
	targetsKeyPrefix = "monitoring:targets:"
	alertsKeyPrefix  = "monitoring:alerts:"
	loginsKey        = "monitoring:logins"
)

// RedisStore keeps each user's watch state as two JSON documents plus a
// login index set. SaveUserState writes all three in one MULTI/EXEC block.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Targets(ctx context.Context, login string) ([]*Target, error) {
	var targets []*Target
	if err := s.load(ctx, targetsKeyPrefix+login, &targets); err != nil {
		return nil, fmt.Errorf("failed to load targets for %s: %w", login, err)
	}
	return targets, nil
}

func (s *RedisStore) Alerts(ctx context.Context, login string) ([]*Alert, error) {
	var alerts []*Alert
	if err := s.load(ctx, alertsKeyPrefix+login, &alerts); err != nil {
		return nil, fmt.Errorf("failed to load alerts for %s: %w", login, err)
	}
	return alerts, nil
}

func (s *RedisStore) SaveUserState(ctx context.Context, login string, targets []*Target, alerts []*Alert) error {
	targetsPayload, err := json.Marshal(targets)
	if err != nil {
		return fmt.Errorf("failed to encode targets: %w", err)
	}
	alertsPayload, err := json.Marshal(alerts)
	if err != nil {
		return fmt.Errorf("failed to encode alerts: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(targets) == 0 {
			pipe.Del(ctx, targetsKeyPrefix+login, alertsKeyPrefix+login)
			pipe.SRem(ctx, loginsKey, login)
			return nil
		}
		pipe.Set(ctx, targetsKeyPrefix+login, targetsPayload, 0)
		pipe.Set(ctx, alertsKeyPrefix+login, alertsPayload, 0)
		pipe.SAdd(ctx, loginsKey, login)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to persist state for %s: %w", login, err)
	}
	return nil
}

func (s *RedisStore) Logins(ctx context.Context) ([]string, error) {
	logins, err := s.client.SMembers(ctx, loginsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list monitored logins: %w", err)
	}
	return logins, nil
}

func (s *RedisStore) load(ctx context.Context, key string, out interface{}) error {
	payload, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, out)
}
