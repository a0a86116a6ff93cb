// Package geo maps IP addresses to country codes with an in-process,
// non-expiring cache.
package geo

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/user/banwatch/internal/util"
)

// Unknown is the country bucket for addresses that cannot be resolved:
// private or reserved ranges, invalid input, lookup failures. Tallies
// keep these instead of dropping them so totals stay intact.
const Unknown = "??"

// Store persists resolved entries across restarts. Optional.
type Store interface {
	SaveEntry(ip, country string) error
}

// Resolver caches country lookups per address. Geolocation of a given
// address is treated as stable, so entries never expire within a
// process run.
type Resolver struct {
	mu    sync.RWMutex
	cache map[string]string

	client  *http.Client
	baseURL string
	store   Store
}

// NewResolver creates a resolver against an ip-api.com style endpoint.
func NewResolver(baseURL string, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Resolver{
		cache:   make(map[string]string),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// SetStore attaches a persistent write-through store.
func (r *Resolver) SetStore(s Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store = s
}

// Warm preloads the cache, typically from the persistent store.
func (r *Resolver) Warm(entries map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ip, country := range entries {
		if country != "" {
			r.cache[ip] = country
		}
	}
}

// Cached returns the cached country for ip without triggering a lookup.
func (r *Resolver) Cached(ip string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	country, ok := r.cache[ip]
	return country, ok
}

// Resolve returns the country code for an address, or Unknown. Private
// and reserved addresses short-circuit without a network call. Lookup
// failures return Unknown without caching, so a transient outage does
// not pin an address to the unresolved bucket forever.
func (r *Resolver) Resolve(ip string) string {
	if country, ok := r.Cached(ip); ok {
		return country
	}

	parsed := net.ParseIP(ip)
	if parsed == nil || !isPublic(parsed) {
		r.remember(ip, Unknown)
		return Unknown
	}

	country, err := r.lookup(ip)
	if err != nil {
		util.Debug("geo lookup %s failed: %v", ip, err)
		return Unknown
	}

	r.remember(ip, country)
	return country
}

func (r *Resolver) remember(ip, country string) {
	r.mu.Lock()
	r.cache[ip] = country
	store := r.store
	r.mu.Unlock()

	if store != nil {
		if err := store.SaveEntry(ip, country); err != nil {
			util.Warn("geo cache persist %s: %v", ip, err)
		}
	}
}

func (r *Resolver) lookup(ip string) (string, error) {
	url := fmt.Sprintf("%s/json/%s?fields=status,countryCode,query", r.baseURL, ip)

	resp, err := r.client.Get(url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("geo API returned status %d", resp.StatusCode)
	}

	var result struct {
		Status      string `json:"status"`
		CountryCode string `json:"countryCode"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode geo response: %w", err)
	}

	if result.Status != "success" || result.CountryCode == "" {
		return Unknown, nil
	}
	return result.CountryCode, nil
}

func isPublic(ip net.IP) bool {
	return !(ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsMulticast() || ip.IsUnspecified())
}
