package cardid

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"
)

// Converter derives the user-facing UID from a raw identifier.
//
// Implementations may be slow. A result depends only on the raw value, so
// callers are free to cache it per raw identifier.
type Converter interface {
	Convert(ctx context.Context, raw string) (string, error)
}

// ConverterFunc adapts a function to the Converter interface.
type ConverterFunc func(ctx context.Context, raw string) (string, error)

// Convert calls f(ctx, raw).
func (f ConverterFunc) Convert(ctx context.Context, raw string) (string, error) {
	return f(ctx, raw)
}

// SerialConverter renders the 48-bit body of a generated identifier as a
// zero-padded 16-digit decimal serial number. Other hex identifiers of up to
// 16 digits, such as scanned 4 and 7 byte tag UIDs, render as 20 digits.
type SerialConverter struct{}

// Convert implements Converter.
func (SerialConverter) Convert(ctx context.Context, raw string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if Valid(raw) {
		serial, err := strconv.ParseUint(raw[len(VendorPrefix):], 16, 64)
		if err != nil {
			return "", fmt.Errorf("convert %q: %w", raw, err)
		}
		return fmt.Sprintf("%016d", serial), nil
	}
	if raw == "" || len(raw) > 16 {
		return "", fmt.Errorf("convert %q: not a valid raw identifier", raw)
	}
	serial, err := strconv.ParseUint(raw, 16, 64)
	if err != nil {
		return "", fmt.Errorf("convert %q: not a valid raw identifier", raw)
	}
	return fmt.Sprintf("%020d", serial), nil
}

// DefaultCacheTTL is used by NewCachedConverter when ttl is not positive.
const DefaultCacheTTL = 10 * time.Minute

// CachedConverter memoizes successful conversions per exact raw identifier
// and collapses concurrent conversions of the same identifier into one call.
// Failures are not cached.
type CachedConverter struct {
	next  Converter
	cache *ttlcache.Cache[string, string]
	group singleflight.Group
}

// NewCachedConverter wraps next. Call Stop to release the expiry goroutine.
func NewCachedConverter(next Converter, ttl time.Duration) *CachedConverter {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	cache := ttlcache.New[string, string](
		ttlcache.WithTTL[string, string](ttl),
	)
	go cache.Start()

	return &CachedConverter{
		next:  next,
		cache: cache,
	}
}

// Convert implements Converter. The shared conversion is detached from the
// cancellation of whichever caller started it. Each caller stops waiting when
// its own ctx is done.
func (c *CachedConverter) Convert(ctx context.Context, raw string) (string, error) {
	if item := c.cache.Get(raw); item != nil {
		return item.Value(), nil
	}

	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(raw, func() (interface{}, error) {
		derived, err := c.next.Convert(shared, raw)
		if err != nil {
			return "", err
		}
		c.cache.Set(raw, derived, ttlcache.DefaultTTL)
		return derived, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Len returns the number of cached conversions.
func (c *CachedConverter) Len() int {
	return c.cache.Len()
}

// Stop stops the cache expiry loop.
func (c *CachedConverter) Stop() {
	c.cache.Stop()
}
