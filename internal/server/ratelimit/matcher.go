package ratelimit

import "strings"

// MatchEndpoint resolves the configuration for a path and method. Exact path
// matches win over prefix entries (config paths ending in "/" match any path
// under them). The health check is always unlimited. Returns nil when nothing
// matches so the caller falls back to the default limit.
func MatchEndpoint(path string, method string, configs []EndpointConfig) *EndpointConfig {
	if path == "/health" && method == "GET" {
		return &EndpointConfig{} // Limit 0 means unlimited
	}

	for i := range configs {
		if configs[i].Path == path && configs[i].Method == method {
			return &configs[i]
		}
	}

	for i := range configs {
		if configs[i].Method == method && strings.HasSuffix(configs[i].Path, "/") &&
			strings.HasPrefix(path, configs[i].Path) {
			return &configs[i]
		}
	}

	return nil
}
