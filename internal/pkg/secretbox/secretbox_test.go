package secretbox

import "testing"

func TestSealOpenRoundTrip(t *testing.T) {
	box, err := New("credential-enc-key")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	sealed, err := box.Seal("shpat_access_token_value")
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if sealed == "shpat_access_token_value" {
		t.Fatalf("expected ciphertext to differ from plaintext")
	}

	opened, err := box.Open(sealed)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if opened != "shpat_access_token_value" {
		t.Fatalf("round trip mismatch: %q", opened)
	}
}

func TestOpen_WrongKey(t *testing.T) {
	box, _ := New("key-a")
	other, _ := New("key-b")

	sealed, err := box.Seal("secret")
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if _, err := other.Open(sealed); err != ErrInvalidCiphertext {
		t.Fatalf("expected ErrInvalidCiphertext, got %v", err)
	}
}

func TestOpen_Garbage(t *testing.T) {
	box, _ := New("key")
	for _, in := range []string{"", "!!!", "AAAA"} {
		if _, err := box.Open(in); err != ErrInvalidCiphertext {
			t.Fatalf("Open(%q): expected ErrInvalidCiphertext, got %v", in, err)
		}
	}
}

func TestNew_EmptySecret(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
