package nav

import "sync"

// History is a Router that only records where it was sent. Remote clients
// read Current and follow it themselves.
type History struct {
	mu     sync.Mutex
	routes []string
}

func (h *History) Replace(route string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.routes = append(h.routes, route)
	return nil
}

// Current returns the last route, or "" before any navigation.
func (h *History) Current() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.routes) == 0 {
		return ""
	}
	return h.routes[len(h.routes)-1]
}

func (h *History) Routes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.routes...)
}
