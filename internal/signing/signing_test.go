package signing

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
)

var (
	keyOnce sync.Once
	testKey *Keyring
	keyErr  error
)

// sharedKey generates one key per test binary; RSA generation is slow.
func sharedKey(t *testing.T) *Keyring {
	t.Helper()
	keyOnce.Do(func() {
		testKey, keyErr = Generate("Tap Maintainer", "tap@example.com")
	})
	if keyErr != nil {
		t.Fatalf("Generate failed: %v", keyErr)
	}
	return testKey
}

func publicOnly(t *testing.T, k *Keyring) *Keyring {
	t.Helper()
	var buf bytes.Buffer
	if err := k.ExportPublic(&buf); err != nil {
		t.Fatalf("ExportPublic failed: %v", err)
	}
	pub, err := ParseKeyring(buf.Bytes())
	if err != nil {
		t.Fatalf("ParseKeyring failed: %v", err)
	}
	return pub
}

func TestSignAndVerify(t *testing.T) {
	k := sharedKey(t)
	msg := []byte("archive bytes")

	var sig bytes.Buffer
	if err := k.Sign(&sig, bytes.NewReader(msg), ""); err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if !strings.HasPrefix(sig.String(), "-----BEGIN PGP SIGNATURE-----") {
		t.Errorf("signature is not armored:\n%s", sig.String())
	}

	pub := publicOnly(t, k)
	signer, err := pub.Verify(bytes.NewReader(msg), sig.Bytes())
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if signer.KeyID == "" || len(signer.Fingerprint) != 40 {
		t.Errorf("unexpected signer: %+v", signer)
	}
	if len(signer.Identities) != 1 || signer.Identities[0] != "Tap Maintainer <tap@example.com>" {
		t.Errorf("identities = %v", signer.Identities)
	}

	if _, err := pub.Verify(bytes.NewReader([]byte("tampered bytes")), sig.Bytes()); err == nil {
		t.Error("expected verification failure for tampered content")
	}
}

func TestVerifyBinarySignature(t *testing.T) {
	k := sharedKey(t)
	msg := []byte("binary signed")

	var sig bytes.Buffer
	if err := openpgp.DetachSign(&sig, k.entities[0], bytes.NewReader(msg), nil); err != nil {
		t.Fatalf("DetachSign failed: %v", err)
	}
	if _, err := k.Verify(bytes.NewReader(msg), sig.Bytes()); err != nil {
		t.Fatalf("Verify of binary signature failed: %v", err)
	}
}

func TestVerifyUnknownKey(t *testing.T) {
	k := sharedKey(t)
	other, err := Generate("Someone Else", "else@example.com")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	var sig bytes.Buffer
	if err := other.Sign(&sig, strings.NewReader("data"), ""); err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if _, err := k.Verify(strings.NewReader("data"), sig.Bytes()); err == nil {
		t.Error("expected failure for signature from a key outside the ring")
	}
}

func TestSignWithoutPrivateKey(t *testing.T) {
	pub := publicOnly(t, sharedKey(t))
	err := pub.Sign(&bytes.Buffer{}, strings.NewReader("x"), "")
	if !errors.Is(err, ErrNoSigningKey) {
		t.Errorf("expected ErrNoSigningKey, got %v", err)
	}
}

func TestSignEncryptedKey(t *testing.T) {
	k, err := Generate("Locked", "locked@example.com")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if err := k.entities[0].PrivateKey.Encrypt([]byte("s3cret")); err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	if err := k.Sign(&bytes.Buffer{}, strings.NewReader("x"), ""); err == nil {
		t.Error("expected error without passphrase")
	}
	if err := k.Sign(&bytes.Buffer{}, strings.NewReader("x"), "wrong"); err == nil {
		t.Error("expected error with wrong passphrase")
	}
	var sig bytes.Buffer
	if err := k.Sign(&sig, strings.NewReader("x"), "s3cret"); err != nil {
		t.Fatalf("Sign with passphrase failed: %v", err)
	}
}

func TestFileRoundTrip(t *testing.T) {
	k := sharedKey(t)
	dir := t.TempDir()

	var priv bytes.Buffer
	if err := k.ExportPrivate(&priv); err != nil {
		t.Fatalf("ExportPrivate failed: %v", err)
	}
	keyPath := filepath.Join(dir, "release.asc")
	if err := os.WriteFile(keyPath, priv.Bytes(), 0600); err != nil {
		t.Fatalf("writing key: %v", err)
	}
	loaded, err := LoadKeyring(keyPath)
	if err != nil {
		t.Fatalf("LoadKeyring failed: %v", err)
	}
	if loaded.Len() != 1 {
		t.Errorf("Len = %d", loaded.Len())
	}

	archive := filepath.Join(dir, "v1.0.3.tar.gz")
	if err := os.WriteFile(archive, []byte("tarball"), 0644); err != nil {
		t.Fatalf("writing archive: %v", err)
	}
	sigPath, err := loaded.SignFile(archive, "")
	if err != nil {
		t.Fatalf("SignFile failed: %v", err)
	}
	if sigPath != archive+".asc" {
		t.Errorf("sigPath = %s", sigPath)
	}
	if _, err := loaded.VerifyFile(archive, sigPath); err != nil {
		t.Errorf("VerifyFile failed: %v", err)
	}

	if _, err := LoadKeyring(filepath.Join(dir, "missing.asc")); err == nil {
		t.Error("expected error for missing keyring")
	}
	if _, err := ParseKeyring([]byte("garbage")); err == nil {
		t.Error("expected error for garbage keyring")
	}
}

func TestProtectAndExport(t *testing.T) {
	k, err := Generate("Protected", "protected@example.com")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if err := k.Protect("abc"); err == nil {
		t.Fatal("expected a short passphrase to be rejected")
	}
	if k.entities[0].PrivateKey.Encrypted {
		t.Fatal("rejected passphrase must leave the key untouched")
	}

	const passphrase = "Granite-otter-41-climbs-slowly"
	if err := k.Protect(passphrase); err != nil {
		t.Fatalf("Protect failed: %v", err)
	}

	var priv bytes.Buffer
	if err := k.ExportPrivate(&priv); err != nil {
		t.Fatalf("ExportPrivate failed: %v", err)
	}
	loaded, err := ParseKeyring(priv.Bytes())
	if err != nil {
		t.Fatalf("ParseKeyring failed: %v", err)
	}
	if err := loaded.Sign(&bytes.Buffer{}, strings.NewReader("x"), ""); err == nil {
		t.Error("exported key should still be encrypted")
	}
	var sig bytes.Buffer
	if err := loaded.Sign(&sig, strings.NewReader("archive"), passphrase); err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if _, err := k.Verify(strings.NewReader("archive"), sig.Bytes()); err != nil {
		t.Errorf("Verify failed: %v", err)
	}
}
