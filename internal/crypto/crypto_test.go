package crypto

import (
	"bytes"
	"testing"
)

func testKey(b byte) []byte {
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = b
	}
	return key
}

func TestSealOpenRoundTrip(t *testing.T) {
	key := testKey(1)
	ct, err := Seal(key, []byte("hello world"))
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(ct, []byte("hello world")) {
		t.Error("ciphertext contains plaintext")
	}
	pt, err := Open(key, ct)
	if err != nil {
		t.Fatal(err)
	}
	if string(pt) != "hello world" {
		t.Errorf("plaintext = %q, want hello world", pt)
	}
}

func TestOpenWrongKey(t *testing.T) {
	ct, err := Seal(testKey(1), []byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Open(testKey(2), ct); err == nil {
		t.Error("decryption with wrong key should fail")
	}
}

func TestOpenCorruptCiphertext(t *testing.T) {
	key := testKey(1)
	ct, err := Seal(key, []byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	ct[len(ct)-1] ^= 0xff
	if _, err := Open(key, ct); err == nil {
		t.Error("tampered ciphertext should fail to open")
	}

	if _, err := Open(key, []byte{1, 2, 3}); err != ErrCiphertextTooShort {
		t.Errorf("short ciphertext error = %v, want ErrCiphertextTooShort", err)
	}
}

func TestSealRejectsBadKey(t *testing.T) {
	if _, err := Seal([]byte("short"), []byte("x")); err != ErrBadKey {
		t.Errorf("error = %v, want ErrBadKey", err)
	}
}

func TestSealStringsRoundTrip(t *testing.T) {
	key := testKey(3)
	list := []string{"plan a trip", "draft an email", "explain this error"}
	ct, err := SealStrings(key, list)
	if err != nil {
		t.Fatal(err)
	}
	got, err := OpenStrings(key, ct)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(list) {
		t.Fatalf("got %d entries, want %d", len(got), len(list))
	}
	for i := range list {
		if got[i] != list[i] {
			t.Errorf("entry %d = %q, want %q", i, got[i], list[i])
		}
	}
}

func TestDeriveChatKeyConverges(t *testing.T) {
	master := testKey(7)
	a, err := DeriveChatKey(master, "chat-1")
	if err != nil {
		t.Fatal(err)
	}
	b, err := DeriveChatKey(master, "chat-1")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("same master key and chat id must derive the same key")
	}

	c, _ := DeriveChatKey(master, "chat-2")
	if bytes.Equal(a, c) {
		t.Error("different chats must have different keys")
	}
	d, _ := DeriveChatKey(testKey(8), "chat-1")
	if bytes.Equal(a, d) {
		t.Error("different master keys must derive different chat keys")
	}
}

func TestWrapUnwrapKey(t *testing.T) {
	master := testKey(9)
	chatKey, err := DeriveChatKey(master, "chat-1")
	if err != nil {
		t.Fatal(err)
	}
	wrapped, err := WrapKey(master, chatKey)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(wrapped, chatKey) {
		t.Error("wrapped key must not equal cleartext key")
	}
	got, err := UnwrapKey(master, wrapped)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, chatKey) {
		t.Error("unwrap did not recover the chat key")
	}
}
