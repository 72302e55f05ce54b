package internal

import (
	"testing"
)

// FuzzParseOpaqueID exercises identifier decoding with arbitrary strings.
// Goal: no panics; invalid inputs should return errors cleanly.
func FuzzParseOpaqueID(f *testing.F) {
	f.Add("")
	f.Add("abc")
	f.Add("!!!not-base64!!!")
	f.Add("AAAAAAAAAAAAAAAAAAAAAA")

	if id, err := NewOpaqueID(); err == nil {
		f.Add(id.String())
	}

	f.Fuzz(func(t *testing.T, s string) {
		id, err := ParseOpaqueID(s)
		if err != nil {
			return
		}
		if id.String() != s {
			t.Fatalf("round trip mismatch: %q != %q", id.String(), s)
		}
	})
}
