package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/beacon/internal/config"
	credentialdomain "github.com/smallbiznis/beacon/internal/credential/domain"
)

const keyIngestCredential = "ingest:credential:%s"

// TierLimiter throttles ingest requests per credential according to its tier.
// Enterprise credentials are never throttled.
type TierLimiter struct {
	enabled bool
	bucket  *TokenBucket

	freeRPM     int
	proRPM      int
	businessRPM int
}

// NewTierLimiter builds the limiter from config. A nil limiter (rate limiting
// disabled) is valid and allows everything.
func NewTierLimiter(cfg config.Config) (*TierLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.FreeRPM <= 0 || limitCfg.ProRPM <= 0 || limitCfg.BusinessRPM <= 0 {
		return nil, errors.New("tier rate limits must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &TierLimiter{
		enabled:     true,
		bucket:      NewTokenBucket(client),
		freeRPM:     limitCfg.FreeRPM,
		proRPM:      limitCfg.ProRPM,
		businessRPM: limitCfg.BusinessRPM,
	}, nil
}

func (l *TierLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// Decision carries what the handler needs for rate limit response headers.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Allow consumes one request slot for the credential.
func (l *TierLimiter) Allow(ctx context.Context, credentialID snowflake.ID, tier credentialdomain.Tier) (Decision, error) {
	if !l.Enabled() {
		return Decision{Allowed: true}, nil
	}

	rpm := l.limitFor(tier)
	if rpm == 0 {
		return Decision{Allowed: true}, nil
	}

	key := fmt.Sprintf(keyIngestCredential, credentialID.String())
	res, err := l.bucket.Allow(ctx, key, float64(rpm)/60.0, rpm)
	if err != nil {
		return Decision{}, err
	}

	return Decision{
		Allowed:    res.Allowed,
		Limit:      rpm,
		Remaining:  res.Remaining,
		RetryAfter: res.RetryAfter,
	}, nil
}

// limitFor returns requests per minute for the tier; 0 means unlimited.
func (l *TierLimiter) limitFor(tier credentialdomain.Tier) int {
	switch tier {
	case credentialdomain.TierPro:
		return l.proRPM
	case credentialdomain.TierBusiness:
		return l.businessRPM
	case credentialdomain.TierEnterprise:
		return 0
	default:
		return l.freeRPM
	}
}
