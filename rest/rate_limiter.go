package rest

import (
	"github.com/redis/go-redis/v9"
	"github.com/xompass/vsaas-docrepo/helpers"
	"github.com/xompass/vsaas-docrepo/http_errors"
)

func newRedisClient(opts *redis.Options) *redis.Client {
	if opts != nil {
		return redis.NewClient(opts)
	}

	return redis.NewClient(&redis.Options{
		Addr:     helpers.GetEnv("REDIS_HOST", "localhost") + ":" + helpers.GetEnv("REDIS_PORT", "6379"),
		Password: helpers.GetEnv("REDIS_PASSWORD", ""),
		DB:       helpers.GetEnvInt("REDIS_DB", 1),
	})
}

func rateLimitKey(ctx *EndpointContext, rateLimit RateLimit) string {
	if rateLimit.Key != "" {
		return rateLimit.Key
	}
	return ctx.Endpoint.Name + "_" + ctx.IpAddress
}

// checkRateLimit counts the request in a fixed window kept in redis. The
// window starts with the first request and is not extended by later ones.
func checkRateLimit(ctx *EndpointContext) error {
	if ctx.Endpoint.RateLimiter == nil {
		return nil
	}

	redisClient := ctx.App.redisClient
	if redisClient == nil {
		ctx.App.Debugf("Rate limiter disabled, skipping limit of %s", ctx.Endpoint.Name)
		return nil
	}

	rateLimit := ctx.Endpoint.RateLimiter(ctx)
	if rateLimit.Max <= 0 || rateLimit.Window <= 0 {
		return nil
	}

	key := rateLimitKey(ctx, rateLimit)
	requestCtx := ctx.Context()

	pipe := redisClient.TxPipeline()
	incrCmd := pipe.Incr(requestCtx, key)
	pipe.ExpireNX(requestCtx, key, rateLimit.Window)

	if _, err := pipe.Exec(requestCtx); err != nil {
		return err
	}

	count, err := incrCmd.Result()
	if err != nil {
		return err
	}

	if count > int64(rateLimit.Max) {
		ctx.App.Warnf("Rate limit exceeded for %s: %d requests", key, count)
		return http_errors.TooManyRequestsError("Too many requests")
	}

	return nil
}
