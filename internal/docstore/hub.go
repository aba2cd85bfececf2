package docstore

import (
	"sync"
)

const subscriptionBuffer = 64

type event struct {
	snap Snapshot
	err  error
}

// subscription delivers events to one subscriber on its own goroutine so a slow
// consumer never reorders or stalls another.
type subscription struct {
	onSnapshot func(Snapshot)
	onError    func(error)

	queue chan event
	done  chan struct{}
	once  sync.Once
}

func (s *subscription) run() {
	var lastVersion int64
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.queue:
			if ev.err != nil {
				if s.onError != nil {
					s.onError(ev.err)
				}
				continue
			}
			// Initial loads and notifications can race; never go backwards.
			if ev.snap.Exists && ev.snap.Version < lastVersion {
				continue
			}
			lastVersion = ev.snap.Version
			if s.onSnapshot != nil {
				s.onSnapshot(ev.snap)
			}
		}
	}
}

func (s *subscription) push(ev event) {
	select {
	case s.queue <- ev:
	case <-s.done:
	}
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

type hub struct {
	mu   sync.RWMutex
	subs map[Key]map[*subscription]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[Key]map[*subscription]struct{})}
}

func (h *hub) subscribe(key Key, onSnapshot func(Snapshot), onError func(error)) (*subscription, func()) {
	sub := &subscription{
		onSnapshot: onSnapshot,
		onError:    onError,
		queue:      make(chan event, subscriptionBuffer),
		done:       make(chan struct{}),
	}

	h.mu.Lock()
	if h.subs[key] == nil {
		h.subs[key] = make(map[*subscription]struct{})
	}
	h.subs[key][sub] = struct{}{}
	h.mu.Unlock()

	go sub.run()

	return sub, func() {
		sub.stop()
		h.mu.Lock()
		clients := h.subs[key]
		delete(clients, sub)
		if len(clients) == 0 {
			delete(h.subs, key)
		}
		h.mu.Unlock()
	}
}

func (h *hub) broadcast(key Key, ev event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[key] {
		sub.push(ev)
	}
}

func (h *hub) has(key Key) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[key]) > 0
}

func (h *hub) keys() []Key {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Key, 0, len(h.subs))
	for k := range h.subs {
		out = append(out, k)
	}
	return out
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key, clients := range h.subs {
		for sub := range clients {
			sub.stop()
		}
		delete(h.subs, key)
	}
}
