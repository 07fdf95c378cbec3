// Package signing creates and checks detached OpenPGP signatures of release
// archives.
package signing

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/muesli/crunchy"
)

const armorPrefix = "-----BEGIN PGP"

// ErrNoSigningKey is returned when the keyring holds no usable private key.
var ErrNoSigningKey = errors.New("keyring has no private signing key")

// Keyring is a set of OpenPGP entities.
type Keyring struct {
	entities openpgp.EntityList
}

// Signer describes the key that produced a valid signature.
type Signer struct {
	KeyID       string
	Fingerprint string
	Identities  []string
}

// LoadKeyring reads an armored or binary keyring file.
func LoadKeyring(path string) (*Keyring, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading keyring: %w", err)
	}
	kr, err := ParseKeyring(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return kr, nil
}

// ParseKeyring decodes keyring bytes, armored or binary.
func ParseKeyring(data []byte) (*Keyring, error) {
	var (
		el  openpgp.EntityList
		err error
	)
	if isArmored(data) {
		el, err = openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	} else {
		el, err = openpgp.ReadKeyRing(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("parsing keyring: %w", err)
	}
	if len(el) == 0 {
		return nil, fmt.Errorf("keyring is empty")
	}
	return &Keyring{entities: el}, nil
}

// Len returns the number of keys in the ring.
func (k *Keyring) Len() int { return len(k.entities) }

// Sign writes an armored detached signature of message to w using the first
// private key in the ring. Encrypted keys are unlocked with passphrase.
func (k *Keyring) Sign(w io.Writer, message io.Reader, passphrase string) error {
	signer, err := k.signingEntity(passphrase)
	if err != nil {
		return err
	}
	if err := openpgp.ArmoredDetachSign(w, signer, message, nil); err != nil {
		return fmt.Errorf("signing: %w", err)
	}
	return nil
}

// SignFile writes an armored detached signature of path to path+".asc" and
// returns the signature path.
func (k *Keyring) SignFile(path, passphrase string) (string, error) {
	in, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer in.Close()

	var sig bytes.Buffer
	if err := k.Sign(&sig, in, passphrase); err != nil {
		return "", err
	}
	sigPath := path + ".asc"
	if err := os.WriteFile(sigPath, sig.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("writing signature: %w", err)
	}
	return sigPath, nil
}

// Verify checks that signature is a valid detached signature of signed made
// by a key in the ring. The signature may be armored or binary.
func (k *Keyring) Verify(signed io.Reader, signature []byte) (*Signer, error) {
	var (
		entity *openpgp.Entity
		err    error
	)
	if isArmored(signature) {
		entity, err = openpgp.CheckArmoredDetachedSignature(k.entities, signed, bytes.NewReader(signature), nil)
	} else {
		entity, err = openpgp.CheckDetachedSignature(k.entities, signed, bytes.NewReader(signature), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("verifying signature: %w", err)
	}
	return describe(entity), nil
}

// VerifyFile checks sigPath against the content of path.
func (k *Keyring) VerifyFile(path, sigPath string) (*Signer, error) {
	sig, err := os.ReadFile(sigPath)
	if err != nil {
		return nil, fmt.Errorf("reading signature: %w", err)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return k.Verify(f, sig)
}

// ExportPublic writes the armored public keys of the ring.
func (k *Keyring) ExportPublic(w io.Writer) error {
	aw, err := armor.Encode(w, openpgp.PublicKeyType, nil)
	if err != nil {
		return err
	}
	for _, e := range k.entities {
		if err := e.Serialize(aw); err != nil {
			aw.Close()
			return fmt.Errorf("serializing public key: %w", err)
		}
	}
	return aw.Close()
}

// ExportPrivate writes the armored private keys of the ring.
func (k *Keyring) ExportPrivate(w io.Writer) error {
	aw, err := armor.Encode(w, openpgp.PrivateKeyType, nil)
	if err != nil {
		return err
	}
	for _, e := range k.entities {
		if e.PrivateKey == nil {
			continue
		}
		serialize := e.SerializePrivate
		if e.PrivateKey.Encrypted {
			// re-signing needs the decrypted key
			serialize = e.SerializePrivateWithoutSigning
		}
		if err := serialize(aw, nil); err != nil {
			aw.Close()
			return fmt.Errorf("serializing private key: %w", err)
		}
	}
	return aw.Close()
}

// Protect encrypts every private key of the ring with passphrase, which
// must pass a strength check.
func (k *Keyring) Protect(passphrase string) error {
	if err := crunchy.NewValidator().Check(passphrase); err != nil {
		return fmt.Errorf("passphrase rejected: %w", err)
	}
	secret := []byte(passphrase)
	for _, e := range k.entities {
		if e.PrivateKey == nil || e.PrivateKey.Encrypted {
			continue
		}
		if err := e.PrivateKey.Encrypt(secret); err != nil {
			return fmt.Errorf("encrypting key %s: %w", e.PrimaryKey.KeyIdString(), err)
		}
		for _, sub := range e.Subkeys {
			if sub.PrivateKey == nil || sub.PrivateKey.Encrypted {
				continue
			}
			if err := sub.PrivateKey.Encrypt(secret); err != nil {
				return fmt.Errorf("encrypting subkey %s: %w", sub.PublicKey.KeyIdString(), err)
			}
		}
	}
	return nil
}

// Generate creates a new keyring with a single fresh key whose identity is
// "name <email>". It is meant for local tap maintainers who do not have a
// release key yet.
func Generate(name, email string) (*Keyring, error) {
	cfg := &packet.Config{RSABits: 3072}
	e, err := openpgp.NewEntity(name, "", email, cfg)
	if err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	return &Keyring{entities: openpgp.EntityList{e}}, nil
}

func (k *Keyring) signingEntity(passphrase string) (*openpgp.Entity, error) {
	for _, e := range k.entities {
		if e.PrivateKey == nil {
			continue
		}
		if e.PrivateKey.Encrypted {
			if passphrase == "" {
				return nil, fmt.Errorf("private key %s is encrypted and no passphrase was given", e.PrimaryKey.KeyIdString())
			}
			if err := e.DecryptPrivateKeys([]byte(passphrase)); err != nil {
				return nil, fmt.Errorf("unlocking private key: %w", err)
			}
		}
		return e, nil
	}
	return nil, ErrNoSigningKey
}

func describe(e *openpgp.Entity) *Signer {
	if e == nil || e.PrimaryKey == nil {
		return &Signer{}
	}
	s := &Signer{
		KeyID:       e.PrimaryKey.KeyIdString(),
		Fingerprint: strings.ToUpper(fmt.Sprintf("%x", e.PrimaryKey.Fingerprint)),
	}
	for name := range e.Identities {
		s.Identities = append(s.Identities, name)
	}
	sort.Strings(s.Identities)
	return s
}

func isArmored(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(data), []byte(armorPrefix))
}
