package processor

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // GIF format support
	_ "image/jpeg" // JPEG format support
	"image/png"

	"github.com/disintegration/imaging"
	"github.com/genricoloni/notchd/internal/domain"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const maxArtworkSide = 4096

// ArtworkKey identifies one resized rendition of a track's artwork
type ArtworkKey struct {
	Track  string
	Width  int
	Height int
}

// ArtworkCache keeps recently resized artwork renditions, evicting the least recently used
type ArtworkCache struct {
	logger *zap.Logger
	cache  *lru.Cache[ArtworkKey, []byte]
}

// NewArtworkCache creates a cache sized from configuration
func NewArtworkCache(logger *zap.Logger, cfg domain.Config) (*ArtworkCache, error) {
	return NewArtworkCacheWithSize(logger, cfg.GetArtworkCacheSize())
}

// NewArtworkCacheWithSize creates a cache holding at most size renditions
func NewArtworkCacheWithSize(logger *zap.Logger, size int) (*ArtworkCache, error) {
	cache, err := lru.New[ArtworkKey, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create artwork cache: %w", err)
	}
	return &ArtworkCache{logger: logger, cache: cache}, nil
}

// Get returns the rendition for key, resizing original on a miss
func (c *ArtworkCache) Get(key ArtworkKey, original []byte) ([]byte, error) {
	if data, ok := c.cache.Get(key); ok {
		return data, nil
	}

	data, err := Resize(original, key.Width, key.Height)
	if err != nil {
		return nil, err
	}

	if evicted := c.cache.Add(key, data); evicted {
		c.logger.Debug("Artwork cache evicted an entry", zap.Int("size", c.cache.Len()))
	}
	return data, nil
}

// Len returns the number of cached renditions
func (c *ArtworkCache) Len() int {
	return c.cache.Len()
}

// Purge drops every cached rendition
func (c *ArtworkCache) Purge() {
	c.cache.Purge()
}

// Resize decodes imageData and scales it to fill width x height, cropping from the center.
// The result is PNG encoded.
func Resize(imageData []byte, width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 || width > maxArtworkSide || height > maxArtworkSide {
		return nil, fmt.Errorf("invalid target size: %dx%d", width, height)
	}

	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	// Validate image dimensions to prevent division by zero
	bounds := img.Bounds()
	if bounds.Dy() == 0 || bounds.Dx() == 0 {
		return nil, fmt.Errorf("invalid image dimensions: %dx%d", bounds.Dx(), bounds.Dy())
	}

	result := imaging.Fill(img, width, height, imaging.Center, imaging.Lanczos)

	buf := new(bytes.Buffer)
	if err := png.Encode(buf, result); err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return buf.Bytes(), nil
}
