package processor

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestResize(t *testing.T) {
	tests := []struct {
		name          string
		imageData     []byte
		width, height int
		expectedError string
	}{
		{
			name:      "Success - Square To Thumbnail",
			imageData: createTestJPEG(100, 100, color.RGBA{R: 255, A: 255}),
			width:     30,
			height:    30,
		},
		{
			name:      "Success - Wide Image Cropped",
			imageData: createTestJPEG(200, 100, color.RGBA{G: 255, A: 255}),
			width:     64,
			height:    64,
		},
		{
			name:      "Edge Case - Upscale Very Small Image",
			imageData: createTestJPEG(1, 1, color.RGBA{R: 128, G: 128, B: 128, A: 255}),
			width:     128,
			height:    128,
		},
		{
			name:          "Error - Invalid Image Data",
			imageData:     []byte("not-an-image"),
			width:         30,
			height:        30,
			expectedError: "failed to decode image",
		},
		{
			name:          "Error - Empty Data",
			imageData:     []byte{},
			width:         30,
			height:        30,
			expectedError: "failed to decode image",
		},
		{
			name:          "Error - Corrupted JPEG",
			imageData:     []byte{0xFF, 0xD8, 0xFF, 0x00, 0x00}, // Partial JPEG header
			width:         30,
			height:        30,
			expectedError: "failed to decode image",
		},
		{
			name:          "Error - Zero Target Size",
			imageData:     createTestJPEG(10, 10, color.White),
			width:         0,
			height:        30,
			expectedError: "invalid target size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Resize(tt.imageData, tt.width, tt.height)

			if tt.expectedError != "" {
				if err == nil {
					t.Fatalf("expected error containing '%s', got nil", tt.expectedError)
				}
				if !strings.Contains(err.Error(), tt.expectedError) {
					t.Errorf("expected error '%s' to contain '%s'", err.Error(), tt.expectedError)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			img, _, err := image.Decode(bytes.NewReader(result))
			if err != nil {
				t.Fatalf("result is not a valid image: %v", err)
			}
			bounds := img.Bounds()
			if bounds.Dx() != tt.width || bounds.Dy() != tt.height {
				t.Errorf("expected %dx%d, got %dx%d", tt.width, tt.height, bounds.Dx(), bounds.Dy())
			}
		})
	}
}

func TestArtworkCache_HitMissAndEviction(t *testing.T) {
	cache, err := NewArtworkCacheWithSize(zap.NewNop(), 2)
	if err != nil {
		t.Fatalf("create cache: %v", err)
	}
	original := createTestJPEG(50, 50, color.RGBA{B: 255, A: 255})

	small := ArtworkKey{Track: "a", Width: 10, Height: 10}
	large := ArtworkKey{Track: "a", Width: 40, Height: 40}
	other := ArtworkKey{Track: "b", Width: 10, Height: 10}

	first, err := cache.Get(small, original)
	if err != nil {
		t.Fatalf("miss: %v", err)
	}

	// A hit must not touch the original bytes
	second, err := cache.Get(small, nil)
	if err != nil {
		t.Fatalf("hit: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("cache hit returned different bytes")
	}

	if _, err := cache.Get(large, original); err != nil {
		t.Fatalf("second size: %v", err)
	}
	if cache.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", cache.Len())
	}

	// large was added last, so small is the least recently used entry
	if _, err := cache.Get(other, original); err != nil {
		t.Fatalf("third key: %v", err)
	}
	if cache.Len() != 2 {
		t.Errorf("cache exceeded capacity: %d", cache.Len())
	}
	if _, err := cache.Get(small, nil); err == nil {
		t.Error("expected evicted entry to need the original again")
	}

	cache.Purge()
	if cache.Len() != 0 {
		t.Errorf("expected empty cache after purge, got %d", cache.Len())
	}
}

func TestNewArtworkCache_InvalidSize(t *testing.T) {
	if _, err := NewArtworkCacheWithSize(zap.NewNop(), 0); err == nil {
		t.Error("expected error for zero-sized cache")
	}
}

// createTestJPEG generates a simple JPEG image for testing
func createTestJPEG(width, height int, col color.Color) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, col)
		}
	}

	buf := new(bytes.Buffer)
	err := jpeg.Encode(buf, img, &jpeg.Options{Quality: 80})
	if err != nil {
		panic("failed to create test JPEG: " + err.Error())
	}
	return buf.Bytes()
}
