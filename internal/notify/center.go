// Package notify replaces OS notification-center push delivery with explicit
// observer registration. Notification names are plain strings supplied by configuration.
package notify

import (
	"sync"

	"go.uber.org/zap"
)

const (
	// MusicPlayerInfo is posted by Apple Music whenever its player state changes
	MusicPlayerInfo = "com.apple.Music.playerInfo"
	// SpotifyPlaybackStateChanged is posted by Spotify whenever its player state changes
	SpotifyPlaybackStateChanged = "com.spotify.client.PlaybackStateChanged"
)

type observer struct {
	id int
	fn func()
}

// Center is an in-process notification center
type Center struct {
	logger    *zap.Logger
	mu        sync.RWMutex
	nextID    int
	observers map[string][]observer
}

// NewCenter creates an empty notification center
func NewCenter(logger *zap.Logger) *Center {
	return &Center{
		logger:    logger,
		observers: make(map[string][]observer),
	}
}

// Observe registers fn for name and returns its cancellation function
func (c *Center) Observe(name string, fn func()) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.observers[name] = append(c.observers[name], observer{id: id, fn: fn})
	c.mu.Unlock()

	c.logger.Debug("Observer registered", zap.String("name", name), zap.Int("id", id))

	var once sync.Once
	return func() {
		once.Do(func() { c.remove(name, id) })
	}
}

func (c *Center) remove(name string, id int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	list := c.observers[name]
	for i, o := range list {
		if o.id == id {
			c.observers[name] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(c.observers[name]) == 0 {
		delete(c.observers, name)
	}
	c.logger.Debug("Observer removed", zap.String("name", name), zap.Int("id", id))
}

// Post calls every observer of name synchronously, in registration order.
// Observers may register or cancel from inside the callback.
func (c *Center) Post(name string) {
	c.mu.RLock()
	list := append([]observer(nil), c.observers[name]...)
	c.mu.RUnlock()

	for _, o := range list {
		o.fn()
	}
}

// Count returns the number of observers registered for name
func (c *Center) Count(name string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.observers[name])
}
