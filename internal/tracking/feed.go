package tracking

import (
	crand "crypto/rand"
	"encoding/hex"
	"sync"
)

// Feed is an in-process Source. Publish invokes every subscribed handler
// synchronously, in subscription order, on the caller's goroutine.
type Feed struct {
	mu       sync.Mutex
	ids      []string
	handlers map[string]Handler
}

// NewFeed returns an empty feed.
func NewFeed() *Feed {
	return &Feed{handlers: make(map[string]Handler)}
}

// randomID generates a random subscription ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (f *Feed) Subscribe(h Handler) string {
	id := randomID()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[id] = h
	f.ids = append(f.ids, id)
	return id
}

// Unsubscribe removes a handler. Unknown ids are ignored.
func (f *Feed) Unsubscribe(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.handlers[id]; !ok {
		return
	}
	delete(f.handlers, id)
	for i, sid := range f.ids {
		if sid == id {
			f.ids = append(f.ids[:i], f.ids[i+1:]...)
			break
		}
	}
}

// Publish delivers b to the current subscribers.
func (f *Feed) Publish(b Batch) {
	f.mu.Lock()
	hs := make([]Handler, 0, len(f.ids))
	for _, id := range f.ids {
		hs = append(hs, f.handlers[id])
	}
	f.mu.Unlock()

	for _, h := range hs {
		h(b)
	}
}

// Subscribers returns the number of registered handlers.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}
