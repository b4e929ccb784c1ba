package vm

import (
	"net/url"

	"github.com/roach88/waypost/internal/value"
)

// Endpoint is the successful output of a resolution: a URI plus optional
// transport headers and an arbitrary property bag.
type Endpoint struct {
	// URI is the resolved endpoint address.
	URI *url.URL

	// Headers maps header names to their values. Nil when the result
	// carried no header map.
	Headers map[string][]string

	// Properties is an arbitrary bag of named values attached to the
	// endpoint. Nil when the result carried no property map.
	Properties map[string]value.Value
}

// Result is the terminal outcome of one evaluation: either an Endpoint or a
// plain value, never both.
type Result struct {
	Endpoint *Endpoint
	Value    value.Value
}

// newEndpoint builds an Endpoint from the values RETURN_ENDPOINT popped.
// The header map must be a Map of string lists; the property map is carried
// through as-is.
func newEndpoint(addr int, rawURL string, headers, properties value.Value) (*Endpoint, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, evalErrorAt(ErrCodeBadURI, addr, "endpoint URL %q is not a valid URI", rawURL)
	}
	ep := &Endpoint{URI: u}

	if value.IsSet(headers) {
		m, ok := headers.(value.Map)
		if !ok {
			return nil, evalErrorAt(ErrCodeTypeMismatch, addr, "endpoint headers must be a map, got %s", value.Format(headers))
		}
		ep.Headers = make(map[string][]string, len(m))
		for _, name := range m.SortedKeys() {
			list, ok := m[name].(value.List)
			if !ok {
				return nil, evalErrorAt(ErrCodeTypeMismatch, addr, "endpoint header %q must be a list of strings, got %s", name, value.Format(m[name]))
			}
			vals := make([]string, len(list))
			for i, elem := range list {
				s, ok := elem.(value.String)
				if !ok {
					return nil, evalErrorAt(ErrCodeTypeMismatch, addr, "endpoint header %q value %d must be a string, got %s", name, i, value.Format(elem))
				}
				vals[i] = string(s)
			}
			ep.Headers[name] = vals
		}
	}

	if value.IsSet(properties) {
		m, ok := properties.(value.Map)
		if !ok {
			return nil, evalErrorAt(ErrCodeTypeMismatch, addr, "endpoint properties must be a map, got %s", value.Format(properties))
		}
		ep.Properties = make(map[string]value.Value, len(m))
		for k, v := range m {
			ep.Properties[k] = v
		}
	}
	return ep, nil
}
