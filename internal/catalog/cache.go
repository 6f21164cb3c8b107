package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// Cache kinds accepted by Invalidate.
const (
	KindItem     = "item"
	KindLocation = "location"
	KindPrice    = "price"
	KindActive   = "active_locations"
)

// CachedLookup is a TTL read-through cache around another Lookup.
// PricesComplete is never cached; it gates the DRAFT to OPEN transition.
// Negative answers (no locked price, inactive item or location) are not cached
// either, so a price locked or a row activated later is seen on the next lookup.
type CachedLookup struct {
	next   Lookup
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

// NewCachedLookup wraps next. A nil client disables caching.
func NewCachedLookup(next Lookup, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedLookup {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedLookup{next: next, client: client, ttl: ttl, logger: logger}
}

type cachedPrice struct {
	Price decimal.Decimal `json:"price"`
	Found bool            `json:"found"`
}

// Item implements Lookup.
func (c *CachedLookup) Item(ctx context.Context, id int64) (Item, error) {
	var item Item
	err := c.fetch(ctx, key(KindItem, id), &item, func(ctx context.Context) (any, bool, error) {
		item, err := c.next.Item(ctx, id)
		return item, item.Active, err
	})
	return item, err
}

// Location implements Lookup.
func (c *CachedLookup) Location(ctx context.Context, id int64) (Location, error) {
	var loc Location
	err := c.fetch(ctx, key(KindLocation, id), &loc, func(ctx context.Context) (any, bool, error) {
		loc, err := c.next.Location(ctx, id)
		return loc, loc.Active, err
	})
	return loc, err
}

// ActiveLocations implements Lookup.
func (c *CachedLookup) ActiveLocations(ctx context.Context) ([]Location, error) {
	var locs []Location
	err := c.fetch(ctx, key(KindActive, 0), &locs, func(ctx context.Context) (any, bool, error) {
		locs, err := c.next.ActiveLocations(ctx)
		return locs, true, err
	})
	return locs, err
}

// PeriodPrice implements Lookup.
func (c *CachedLookup) PeriodPrice(ctx context.Context, periodID, itemID int64) (decimal.Decimal, bool, error) {
	var p cachedPrice
	k := strings.Join([]string{"catalog", KindPrice, strconv.FormatInt(periodID, 10), strconv.FormatInt(itemID, 10)}, ":")
	err := c.fetch(ctx, k, &p, func(ctx context.Context) (any, bool, error) {
		price, found, err := c.next.PeriodPrice(ctx, periodID, itemID)
		return cachedPrice{Price: price, Found: found}, found, err
	})
	return p.Price, p.Found, err
}

// PricesComplete implements Lookup.
func (c *CachedLookup) PricesComplete(ctx context.Context, periodID int64) (bool, error) {
	return c.next.PricesComplete(ctx, periodID)
}

// Invalidate drops one cached entry. For KindPrice pass the period id to drop all of its prices.
func (c *CachedLookup) Invalidate(ctx context.Context, kind string, id int64) error {
	if c.client == nil {
		return nil
	}
	if kind != KindPrice {
		keys := []string{key(kind, id)}
		if kind == KindLocation {
			keys = append(keys, key(KindActive, 0))
		}
		return c.client.Del(ctx, keys...).Err()
	}
	pattern := strings.Join([]string{"catalog", KindPrice, strconv.FormatInt(id, 10), "*"}, ":")
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// fetch reads k, falling back to loader. Loaded values are stored only when loader reports them cacheable.
func (c *CachedLookup) fetch(ctx context.Context, k string, dest any, loader func(context.Context) (any, bool, error)) error {
	if c.client != nil {
		payload, err := c.client.Get(ctx, k).Bytes()
		if err == nil {
			return json.Unmarshal(payload, dest)
		}
		if !errors.Is(err, redis.Nil) && c.logger != nil {
			c.logger.Warn("catalog cache get", slog.String("key", k), slog.Any("error", err))
		}
	}
	raw, err, _ := c.group.Do(k, func() (any, error) {
		value, cacheable, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		if c.client != nil && cacheable {
			if err := c.client.Set(ctx, k, raw, c.ttl).Err(); err != nil && c.logger != nil {
				c.logger.Warn("catalog cache set", slog.String("key", k), slog.Any("error", err))
			}
		}
		return raw, nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(raw.([]byte), dest)
}

func key(kind string, id int64) string {
	return strings.Join([]string{"catalog", kind, strconv.FormatInt(id, 10)}, ":")
}
