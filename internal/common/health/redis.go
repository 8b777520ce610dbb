package health

import (
	"github.com/go-redis/redis"
	"github.com/pkg/errors"
)

type RedisChecker struct {
	db redis.UniversalClient
}

func NewRedisChecker(db redis.UniversalClient) *RedisChecker {
	return &RedisChecker{db: db}
}

func (r *RedisChecker) Check() error {
	if _, err := r.db.Ping().Result(); err != nil {
		return errors.Wrap(err, "redis ping failed")
	}
	return nil
}
