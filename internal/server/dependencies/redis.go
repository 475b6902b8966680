package dependencies

import (
	"github.com/redis/go-redis/v9"

	"github.com/clinichub/clinichub/internal/pkg/xredis"
)

// NewRedisClient opens the shared redis connection used for dimension value
// summaries. A missing redis config yields a nil client; consumers degrade
// to uncached behavior.
func NewRedisClient(cfg xredis.Config) (redis.UniversalClient, error) {
	if cfg.Addr == "" && cfg.URL == "" {
		return nil, nil
	}

	client, err := xredis.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	return client, nil
}
