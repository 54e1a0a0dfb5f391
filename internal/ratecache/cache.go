// Package ratecache provides fiat<->sat conversion against an upstream
// BTC/fiat price oracle, coalescing concurrent lookups and tolerating a
// slow or failing oracle by falling back to the last good reading. The
// oracle call uses a *http.Client with a fixed timeout, and Redis backs
// the cross-process stale-fallback store.
package ratecache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ads-marketplace/backend/internal/apperr"
)

const (
	ttl             = 120 * time.Second
	redisTTL        = 150 * time.Second
	oracleDeadline  = 5 * time.Second
	satsPerBTC      = 100_000_000
	redisKeyPrefix  = "rate:"
	singleflightKey = "fetch-all"
)

var supportedCurrencies = map[string]bool{
	"USD": true,
	"EUR": true,
	"CAD": true,
	"GBP": true,
}

// Rate is one cached fiat conversion reading.
type Rate struct {
	Currency        string `json:"currency"`
	RateSatsPerUnit int64  `json:"rate_sats_per_unit"`
	TimestampMs     int64  `json:"timestamp_ms"`
}

// oracleResponse mirrors a CoinGecko-shaped simple-price endpoint:
// {"bitcoin":{"usd":..,"eur":..,"cad":..,"gbp":..}}.
type oracleResponse struct {
	Bitcoin map[string]float64 `json:"bitcoin"`
}

type Cache struct {
	oracleURL  string
	httpClient *http.Client
	redis      *redis.Client
	log        *zap.Logger

	mu    sync.RWMutex
	cache map[string]Rate

	sf singleflight.Group

	nowMs func() int64
}

func New(oracleURL string, redisClient *redis.Client, log *zap.Logger) *Cache {
	return &Cache{
		oracleURL:  oracleURL,
		httpClient: &http.Client{Timeout: oracleDeadline},
		redis:      redisClient,
		log:        log,
		cache:      make(map[string]Rate),
		nowMs:      func() int64 { return time.Now().UnixMilli() },
	}
}

// GetRate returns the sats-per-unit conversion for currency, refreshing
// from the upstream oracle when the cached entry is missing or stale.
// Unknown currencies are rejected before any upstream call.
func (c *Cache) GetRate(ctx context.Context, currency string) (*Rate, error) {
	upper := strings.ToUpper(strings.TrimSpace(currency))
	if !supportedCurrencies[upper] {
		return nil, apperr.Validationf("unsupported currency %q", currency)
	}

	if rate, fresh := c.lookup(upper); fresh {
		return &rate, nil
	}

	_, err, _ := c.sf.Do(singleflightKey, func() (any, error) {
		return nil, c.refresh(ctx)
	})

	if rate, ok := c.lookup2(upper); ok {
		return &rate, nil
	}

	if err != nil {
		if stale, ok := c.staleFromRedis(ctx, upper); ok {
			c.log.Warn("ratecache: serving stale redis fallback", zap.String("currency", upper), zap.Error(err))
			return &stale, nil
		}
		return nil, apperr.Connectionf(err, "rate oracle unavailable for %s", upper)
	}

	return nil, apperr.Connectionf(nil, "rate oracle returned no reading for %s", upper)
}

// lookup returns a cached rate only if it is still within TTL.
func (c *Cache) lookup(currency string) (Rate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rate, ok := c.cache[currency]
	if !ok {
		return Rate{}, false
	}
	age := time.Duration(c.nowMs()-rate.TimestampMs) * time.Millisecond
	return rate, age < ttl
}

// lookup2 returns whatever is cached regardless of freshness. Used
// immediately after a refresh attempt, successful or not, since a
// concurrent waiter may have already refreshed the entry we need.
func (c *Cache) lookup2(currency string) (Rate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rate, ok := c.cache[currency]
	return rate, ok
}

func (c *Cache) refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, oracleDeadline)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.oracleURL, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ratecache: oracle unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ratecache: oracle returned %d", resp.StatusCode)
	}

	var body oracleResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("ratecache: invalid oracle response: %w", err)
	}

	now := c.nowMs()
	fresh := make(map[string]Rate, len(supportedCurrencies))
	for currency := range supportedCurrencies {
		price, ok := body.Bitcoin[strings.ToLower(currency)]
		if !ok || price <= 0 {
			continue
		}
		fresh[currency] = Rate{
			Currency:        currency,
			RateSatsPerUnit: int64(satsPerBTC / price),
			TimestampMs:     now,
		}
	}
	if len(fresh) == 0 {
		return fmt.Errorf("ratecache: oracle response had no recognizable currencies")
	}

	c.mu.Lock()
	for currency, rate := range fresh {
		c.cache[currency] = rate
	}
	c.mu.Unlock()

	c.mirrorToRedis(ctx, fresh)
	return nil
}

func (c *Cache) mirrorToRedis(ctx context.Context, rates map[string]Rate) {
	if c.redis == nil {
		return
	}
	for currency, rate := range rates {
		data, err := json.Marshal(rate)
		if err != nil {
			continue
		}
		if err := c.redis.Set(ctx, redisKeyPrefix+strings.ToLower(currency), data, redisTTL).Err(); err != nil {
			c.log.Warn("ratecache: failed to mirror rate to redis", zap.String("currency", currency), zap.Error(err))
		}
	}
}

func (c *Cache) staleFromRedis(ctx context.Context, currency string) (Rate, bool) {
	if c.redis == nil {
		return Rate{}, false
	}
	data, err := c.redis.Get(ctx, redisKeyPrefix+strings.ToLower(currency)).Bytes()
	if err != nil {
		return Rate{}, false
	}
	var rate Rate
	if err := json.Unmarshal(data, &rate); err != nil {
		return Rate{}, false
	}
	return rate, true
}
