package metadata_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/hubgrid/androidtv-bridge/internal/infra/metadata"
)

// testIconPNG renders a small solid PNG for the fake listing server.
func testIconPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 0xFF
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func listingPage(name, iconURL string) string {
	return fmt.Sprintf(`<html><head>
<script type="application/ld+json" nonce="x">{"name": %q, "image": %q}</script>
</head><body></body></html>`, name, iconURL)
}

func newListingServer(t *testing.T, fetches *int32) *httptest.Server {
	t.Helper()
	icon := testIconPNG(t)
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/store/apps/details"):
			atomic.AddInt32(fetches, 1)
			id := r.URL.Query().Get("id")
			if id == "com.example.missing" {
				http.NotFound(w, r)
				return
			}
			fmt.Fprint(w, listingPage("Example Player", server.URL+"/icon.png"))
		case r.URL.Path == "/icon.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write(icon)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestGetAppMetadataFetchesAndCaches(t *testing.T) {
	var fetches int32
	server := newListingServer(t, &fetches)
	dir := t.TempDir()

	svc := metadata.NewService(dir, metadata.WithBaseURL(server.URL))

	meta := svc.GetAppMetadata(context.Background(), "com.example.player")
	if meta.Name != "Example Player" {
		t.Fatalf("name %q", meta.Name)
	}
	if !strings.HasPrefix(meta.Icon, "data:image/png;base64,") {
		t.Fatalf("icon is not a PNG data URI: %.40q", meta.Icon)
	}
	encoded := strings.TrimPrefix(meta.Icon, "data:image/png;base64,")
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("icon payload is not base64: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("icon payload is not PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 240 || b.Dy() != 240 {
		t.Errorf("icon not resized, bounds %v", b)
	}

	// Second resolution is served from the cache without a network call.
	again := svc.GetAppMetadata(context.Background(), "com.example.player")
	if again.Name != meta.Name || again.Icon != meta.Icon {
		t.Error("cached entry differs from fetched entry")
	}
	if atomic.LoadInt32(&fetches) != 1 {
		t.Errorf("listing fetched %d times", fetches)
	}

	// A fresh service over the same directory reads the persisted cache.
	reloaded := metadata.NewService(dir, metadata.WithBaseURL(server.URL))
	cached := reloaded.GetAppMetadata(context.Background(), "com.example.player")
	if cached.Name != "Example Player" {
		t.Errorf("persisted cache miss, name %q", cached.Name)
	}
	if atomic.LoadInt32(&fetches) != 1 {
		t.Errorf("persisted cache miss hit the network, fetches %d", fetches)
	}
}

func TestGetAppMetadataFallsBackToPackageID(t *testing.T) {
	var fetches int32
	server := newListingServer(t, &fetches)

	svc := metadata.NewService(t.TempDir(), metadata.WithBaseURL(server.URL))

	meta := svc.GetAppMetadata(context.Background(), "com.example.missing")
	if meta.Name != "com.example.missing" {
		t.Errorf("expected the package id as fallback name, got %q", meta.Name)
	}
	if meta.Icon != "" {
		t.Errorf("expected no icon, got %.40q", meta.Icon)
	}
}

func TestAppName(t *testing.T) {
	var fetches int32
	server := newListingServer(t, &fetches)

	svc := metadata.NewService(t.TempDir(), metadata.WithBaseURL(server.URL))

	name, ok := svc.AppName(context.Background(), "com.example.player")
	if !ok || name != "Example Player" {
		t.Errorf("got (%q, %v)", name, ok)
	}
	name, ok = svc.AppName(context.Background(), "com.example.missing")
	if ok || name != "com.example.missing" {
		t.Errorf("got (%q, %v)", name, ok)
	}
}

func TestFilterDataURIs(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no data uri", `{"state": "ON"}`, `{"state": "ON"}`},
		{
			"quoted payload",
			`{"media_image_url": "data:image/png;base64,iVBORw0KGgo="}`,
			`{"media_image_url": "data:image..."}`,
		},
		{
			"multiple payloads",
			`"data:image/png;base64,AAA" and "data:image/jpeg;base64,BBB"`,
			`"data:image..." and "data:image..."`,
		},
		{"unterminated payload", `data:image/png;base64,AAAA`, `data:image...`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := metadata.FilterDataURIs(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
