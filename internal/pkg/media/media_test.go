package media

import (
	"strings"
	"testing"
)

func TestBuildObjectKey(t *testing.T) {
	key := buildObjectKey("logo", "Firmenlogo.PNG")
	if !strings.HasPrefix(key, "media/logo/") || !strings.HasSuffix(key, ".png") {
		t.Fatalf("unexpected key %q", key)
	}

	key = buildObjectKey("photo", "noextension")
	if !strings.HasSuffix(key, ".bin") {
		t.Fatalf("expected fallback extension, got %q", key)
	}

	// Keys must never collide for identical filenames.
	if buildObjectKey("photo", "a.jpg") == buildObjectKey("photo", "a.jpg") {
		t.Fatalf("expected unique keys per upload")
	}
}
