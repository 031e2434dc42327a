package metadata

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"  // GIF decoder
	_ "image/jpeg" // JPEG decoder
	"image/png"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // WebP decoder
)

// iconSize is the edge length icons are normalized to before caching.
const iconSize = 240

// downloadIcon fetches an icon, resizes it to the cache dimensions and
// stores it as PNG. It returns the cached file name.
func (s *Service) downloadIcon(ctx context.Context, iconURL, packageID string) (string, error) {
	log.Debug().Str("package", packageID).Str("url", iconURL).Msg("Downloading app icon")

	body, err := s.get(ctx, iconURL)
	if err != nil {
		return "", err
	}

	img, format, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("decode icon: %w", err)
	}
	log.Debug().Str("package", packageID).Str("format", format).Msg("Resizing app icon")

	dst := image.NewRGBA(image.Rect(0, 0, iconSize, iconSize))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)

	iconName := packageID + ".png"
	out, err := os.Create(s.iconPath(iconName))
	if err != nil {
		return "", fmt.Errorf("create icon file: %w", err)
	}
	defer out.Close()

	if err := png.Encode(out, dst); err != nil {
		return "", fmt.Errorf("encode icon: %w", err)
	}
	return iconName, nil
}

// encodeIcon loads a cached icon and returns it as a PNG data URI. An empty
// name or a missing file yields an empty string.
func (s *Service) encodeIcon(iconName string) string {
	if iconName == "" {
		return ""
	}
	if strings.HasPrefix(iconName, "data:image") {
		return iconName
	}
	data, err := os.ReadFile(s.iconPath(iconName))
	if err != nil {
		log.Warn().Err(err).Str("icon", iconName).Msg("Failed to read cached icon")
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
}

// EncodeImageURL fetches a remote image and returns it as a PNG data URI.
// Inputs that are already data URIs are passed through unchanged.
func (s *Service) EncodeImageURL(ctx context.Context, rawURL string) string {
	if rawURL == "" || strings.HasPrefix(rawURL, "data:image") {
		return rawURL
	}
	body, err := s.get(ctx, rawURL)
	if err != nil {
		log.Warn().Err(err).Str("url", rawURL).Msg("Failed to fetch image")
		return ""
	}
	img, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		log.Warn().Err(err).Str("url", rawURL).Msg("Failed to decode image")
		return ""
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		log.Warn().Err(err).Msg("Failed to encode image")
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}
