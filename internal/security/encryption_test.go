package security

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"helpdesk-ai/internal/domain"
)

func testSalt() []byte { return bytes.Repeat([]byte{7}, saltSize) }

func TestSessionCipherRoundTrip(t *testing.T) {
	c, err := NewSessionCipher("passphrase", testSalt())
	if err != nil {
		t.Fatalf("NewSessionCipher: %v", err)
	}
	plain := []byte(`{"user_id":"user123"}`)
	sealed, err := c.Seal(plain)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if !strings.HasPrefix(string(sealed), encPrefix) {
		t.Errorf("sealed = %q, want enc: prefix", sealed)
	}
	got, err := c.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Errorf("Open = %q", got)
	}
}

func TestSessionCipherSameSaltAcrossInstances(t *testing.T) {
	a, _ := NewSessionCipher("pw", testSalt())
	b, _ := NewSessionCipher("pw", testSalt())
	sealed, _ := a.Seal([]byte("state"))
	got, err := b.Open(sealed)
	if err != nil || string(got) != "state" {
		t.Fatalf("Open = %q, %v", got, err)
	}
}

func TestSessionCipherWrongKey(t *testing.T) {
	a, _ := NewSessionCipher("right", testSalt())
	b, _ := NewSessionCipher("wrong", testSalt())
	sealed, _ := a.Seal([]byte("state"))
	_, err := b.Open(sealed)
	if !errors.Is(err, domain.ErrDecryption) {
		t.Errorf("err = %v, want ErrDecryption", err)
	}
}

func TestSessionCipherPlaintextPassthrough(t *testing.T) {
	c, _ := NewSessionCipher("pw", testSalt())
	got, err := c.Open([]byte(`{"a":1}`))
	if err != nil || string(got) != `{"a":1}` {
		t.Errorf("Open = %q, %v", got, err)
	}
}

func TestSessionCipherMalformed(t *testing.T) {
	c, _ := NewSessionCipher("pw", testSalt())
	for _, in := range []string{"enc:!!!", "enc:AAAA"} {
		if _, err := c.Open([]byte(in)); !errors.Is(err, domain.ErrDecryption) {
			t.Errorf("%q: err = %v", in, err)
		}
	}
}

func TestSessionCipherRejectsBadInput(t *testing.T) {
	if _, err := NewSessionCipher("", testSalt()); err == nil {
		t.Error("empty passphrase should fail")
	}
	if _, err := NewSessionCipher("pw", []byte("short")); err == nil {
		t.Error("short salt should fail")
	}
}

func TestSessionCipherZeroize(t *testing.T) {
	c, _ := NewSessionCipher("pw", testSalt())
	c.Zeroize()
	if _, err := c.Seal([]byte("x")); !errors.Is(err, domain.ErrEncryption) {
		t.Errorf("err = %v, want ErrEncryption", err)
	}
}

func TestLoadOrCreateSalt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "session.salt")
	first, err := LoadOrCreateSalt(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := LoadOrCreateSalt(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("salt changed between loads")
	}
}
