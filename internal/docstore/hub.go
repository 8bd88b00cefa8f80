package docstore

import (
	"log/slog"
	"sync"
)

// hub fans collection change notifications out to subscribers. Each
// subscriber owns a goroutine that re-reads the collection snapshot on every
// wake-up; the capacity-1 wake channel coalesces bursts of writes into a
// single delivery.
type hub struct {
	mu   sync.Mutex
	subs map[string][]*subscriber
}

type subscriber struct {
	wake chan struct{}
	stop chan struct{}
	once sync.Once
}

func newHub() *hub {
	return &hub{subs: make(map[string][]*subscriber)}
}

func (h *hub) subscribe(collection string, fn func([]Document), snapshot func() ([]Document, error)) func() {
	sub := &subscriber{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}

	h.mu.Lock()
	h.subs[collection] = append(h.subs[collection], sub)
	h.mu.Unlock()

	// Initial delivery happens on the subscriber goroutine as well, so fn
	// is never invoked on the caller's stack.
	sub.wake <- struct{}{}

	go func() {
		for {
			select {
			case <-sub.stop:
				return
			case <-sub.wake:
				docs, err := snapshot()
				if err != nil {
					slog.Warn("subscription snapshot failed", "collection", collection, "error", err)
					continue
				}
				select {
				case <-sub.stop:
					return
				default:
				}
				fn(docs)
			}
		}
	}()

	return func() {
		sub.once.Do(func() {
			close(sub.stop)
			h.remove(collection, sub)
		})
	}
}

func (h *hub) remove(collection string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.subs[collection]
	for i, s := range subs {
		if s == sub {
			h.subs[collection] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

func (h *hub) notify(collection string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs[collection] {
		select {
		case sub.wake <- struct{}{}:
		default: // a wake-up is already pending; coalesce
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string][]*subscriber)
	h.mu.Unlock()
	for _, list := range subs {
		for _, sub := range list {
			sub.once.Do(func() { close(sub.stop) })
		}
	}
}
