package discordhttp

import (
	"fmt"
	"regexp"
	"sync"
)

// componentRegistry routes message component and modal submit
// interactions by custom ID. Exact matches are checked first, then
// regex patterns in registration order.
type componentRegistry struct {
	mu    sync.RWMutex
	exact map[string]CommandHandler
	regex []regexHandler
}

type regexHandler struct {
	pattern *regexp.Regexp
	handler CommandHandler
}

func newComponentRegistry() *componentRegistry {
	return &componentRegistry{exact: map[string]CommandHandler{}}
}

func (r *componentRegistry) add(customID string, handler CommandHandler) error {
	if customID == "" {
		return fmt.Errorf("custom ID is required")
	}
	if handler == nil {
		return fmt.Errorf("handler for %q is required", customID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.exact[customID]; exists {
		return fmt.Errorf("custom ID %q already registered", customID)
	}
	r.exact[customID] = handler
	return nil
}

func (r *componentRegistry) addRegex(
	pattern string,
	handler CommandHandler,
) error {
	if handler == nil {
		return fmt.Errorf("handler for %q is required", pattern)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid custom ID pattern %q: %w", pattern, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.regex = append(r.regex, regexHandler{pattern: re, handler: handler})
	return nil
}

// match finds the handler for a custom ID, preferring an exact match
// over regex patterns.
func (r *componentRegistry) match(customID string) (CommandHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if handler, ok := r.exact[customID]; ok {
		return handler, true
	}
	for _, rh := range r.regex {
		if rh.pattern.MatchString(customID) {
			return rh.handler, true
		}
	}
	return nil, false
}
