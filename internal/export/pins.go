package export

import (
	"sort"
	"sync"
)

// PinSet tracks which sessions are enrolled for continuous PNG export:
// either every session (universal) or an explicit allow-list, mutable at
// runtime through export-config messages and config reloads.
type PinSet struct {
	mu  sync.Mutex
	all bool
	ids map[string]bool
}

func NewPinSet(ids []string) *PinSet {
	p := &PinSet{ids: make(map[string]bool)}
	p.Replace(ids)
	return p
}

// Replace swaps the membership for the given list. A "*" entry means every
// session is pinned.
func (p *PinSet) Replace(ids []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.all = false
	p.ids = make(map[string]bool)
	for _, id := range ids {
		if id == "*" {
			p.all = true
			continue
		}
		if id != "" {
			p.ids[id] = true
		}
	}
}

// Set pins or unpins a single session.
func (p *PinSet) Set(id string, pinned bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pinned {
		p.ids[id] = true
	} else {
		delete(p.ids, id)
	}
}

// Pinned reports whether the session is enrolled for export.
func (p *PinSet) Pinned(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.all || p.ids[id]
}

// List returns the explicit allow-list, sorted. "*" leads when every
// session is pinned.
func (p *PinSet) List() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.ids)+1)
	for id := range p.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	if p.all {
		out = append([]string{"*"}, out...)
	}
	return out
}
