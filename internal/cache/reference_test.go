package cache

import (
	"strings"
	"testing"
)

func TestParseReference(t *testing.T) {
	id := NewHasher().Sum([]byte("ref"))

	testCases := []struct {
		name string
		ref  string
		ok   bool
	}{
		{"bare id", id, true},
		{"reference path", "/api/images/" + id, true},
		{"custom prefix", "/v1/pix/images/" + id, true},
		{"absolute url", "http://localhost:5000/api/images/" + id + "?v=1", true},
		{"trailing slash", "/api/images/" + id + "/", true},
		{"with extension", id + ".png", true},
		{"upper case", strings.ToUpper(id), true},
		{"empty", "", false},
		{"garbage", "/api/images/nope", false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseReference(tc.ref)
			if ok != tc.ok {
				t.Fatalf("ParseReference(%q) ok=%v, want %v", tc.ref, ok, tc.ok)
			}
			if ok && got != id {
				t.Fatalf("ParseReference(%q) = %s, want %s", tc.ref, got, id)
			}
		})
	}
}

func TestReferencePrefixNormalization(t *testing.T) {
	for _, prefix := range []string{"api", "/api", "/api/", " api "} {
		if got := Reference(prefix, "abc"); got != "/api/images/abc" {
			t.Fatalf("Reference(%q) = %s", prefix, got)
		}
	}
	if got := Reference("", "abc"); got != "/images/abc" {
		t.Fatalf("empty prefix should produce /images/abc, got %s", got)
	}
}

func TestExtensionMapping(t *testing.T) {
	if ext := ExtensionForType("image/pjpeg"); ext != ".jpg" {
		t.Fatalf("pjpeg should map to .jpg, got %s", ext)
	}
	if ext := ExtensionForType("text/plain"); ext != genericExtension {
		t.Fatalf("unknown type should map to %s, got %s", genericExtension, ext)
	}
	if ct, ok := TypeForExtension(".JPEG"); !ok || ct != "image/jpeg" {
		t.Fatalf("inverse mapping failed: %s %v", ct, ok)
	}
	if _, ok := TypeForExtension(".txt"); ok {
		t.Fatalf(".txt is not a cache extension")
	}
}
