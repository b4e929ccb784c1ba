package vm

import (
	"container/list"
	"net/netip"
	"net/url"
	"strings"
	"sync"

	"github.com/roach88/waypost/internal/value"
)

// DefaultURICacheSize is the URICache capacity evaluators use unless
// configured otherwise.
const DefaultURICacheSize = 100

// ParseURLValue parses s into the URL map value PARSE_URL pushes: keys
// scheme, authority, path, normalizedPath (always trailing-slashed), and
// isIp (host is a literal IPv4 or bracketed IPv6 address). An unparsable
// string yields nil; the caller decides whether that is fatal.
func ParseURLValue(s string) value.Value {
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil
	}
	// Query strings are not part of a resolvable endpoint prefix.
	if u.RawQuery != "" || strings.Contains(s, "?") {
		return nil
	}

	path := u.Path
	normalized := path
	if normalized == "" {
		normalized = "/"
	} else if !strings.HasSuffix(normalized, "/") {
		normalized += "/"
	}

	_, err = netip.ParseAddr(u.Hostname())
	return value.Map{
		"scheme":         value.String(u.Scheme),
		"authority":      value.String(u.Host),
		"path":           value.String(path),
		"normalizedPath": value.String(normalized),
		"isIp":           value.Bool(err == nil),
	}
}

// URICache memoizes ParseURLValue results under a strict least-recently-used
// eviction policy. It is mutex-guarded, so one cache may be shared across
// evaluators running on different goroutines.
type URICache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front is most recently used
}

type uriEntry struct {
	key string
	val value.Value // nil for strings that failed to parse
}

// NewURICache creates a cache bounded to capacity entries.
// Capacities below 1 fall back to DefaultURICacheSize.
func NewURICache(capacity int) *URICache {
	if capacity < 1 {
		capacity = DefaultURICacheSize
	}
	return &URICache{
		capacity: capacity,
		entries:  make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

// Get returns the parsed URL value for s, parsing and caching on miss.
// Unparsable strings are cached as nil results.
func (c *URICache) Get(s string) value.Value {
	c.mu.Lock()
	if elem, hit := c.entries[s]; hit {
		c.order.MoveToFront(elem)
		v := elem.Value.(*uriEntry).val
		c.mu.Unlock()
		return v
	}
	c.mu.Unlock()

	// Parse outside the lock; URL parsing is pure.
	v := ParseURLValue(s)

	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, hit := c.entries[s]; hit {
		c.order.MoveToFront(elem)
		return elem.Value.(*uriEntry).val
	}
	c.entries[s] = c.order.PushFront(&uriEntry{key: s, val: v})
	for len(c.entries) > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*uriEntry).key)
	}
	return v
}

// Len returns the number of cached entries.
func (c *URICache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
