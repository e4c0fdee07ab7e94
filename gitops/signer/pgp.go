package signer

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/ProtonMail/go-crypto/openpgp"

	"github.com/byte4ever/gitops_pr/gitops/git"
	"github.com/byte4ever/gitops_pr/gitops/git/local"
)

var (
	// ErrNoPrivateKey is returned for key rings without a
	// usable private key.
	ErrNoPrivateKey = errors.New("no private key")
	// ErrKeyEncrypted is returned when a private key is
	// still encrypted.
	ErrKeyEncrypted = errors.New("private key is encrypted")
)

// PGP signs commits with an OpenPGP entity.
type PGP struct {
	entity *openpgp.Entity
}

// NewPGP returns a signer for entity. Its private keys
// must already be decrypted.
func NewPGP(entity *openpgp.Entity) (*PGP, error) {
	const errCtx = "creating pgp signer"

	if entity == nil || entity.PrivateKey == nil {
		return nil, fmt.Errorf("%s: %w", errCtx, ErrNoPrivateKey)
	}

	if entity.PrivateKey.Encrypted {
		return nil, fmt.Errorf("%s: %w", errCtx, ErrKeyEncrypted)
	}

	return &PGP{entity: entity}, nil
}

// FromArmoredKey reads the first entity of an armored
// private key ring and decrypts its keys with
// passphrase when they are protected.
func FromArmoredKey(
	r io.Reader,
	passphrase []byte,
) (*PGP, error) {
	const errCtx = "loading signing key"

	ring, err := openpgp.ReadArmoredKeyRing(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	if len(ring) == 0 {
		return nil, fmt.Errorf("%s: %w", errCtx, ErrNoPrivateKey)
	}

	entity := ring[0]
	if entity.PrivateKey == nil {
		return nil, fmt.Errorf("%s: %w", errCtx, ErrNoPrivateKey)
	}

	if err := decrypt(entity, passphrase); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return NewPGP(entity)
}

func decrypt(entity *openpgp.Entity, passphrase []byte) error {
	if entity.PrivateKey.Encrypted {
		if len(passphrase) == 0 {
			return ErrKeyEncrypted
		}

		if err := entity.PrivateKey.Decrypt(passphrase); err != nil {
			return fmt.Errorf("decrypting primary key: %w", err)
		}
	}

	for _, sub := range entity.Subkeys {
		if sub.PrivateKey == nil || !sub.PrivateKey.Encrypted {
			continue
		}

		if err := sub.PrivateKey.Decrypt(passphrase); err != nil {
			return fmt.Errorf("decrypting subkey: %w", err)
		}
	}

	return nil
}

// GenerateSignature returns an armored detached
// signature over the commit payload.
func (p *PGP) GenerateSignature(c git.Commit) (string, error) {
	const errCtx = "pgp signing commit"

	payload, err := local.CommitPayload(c)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	var sig bytes.Buffer

	if err := openpgp.ArmoredDetachSign(
		&sig, p.entity, bytes.NewReader(payload), nil,
	); err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	return sig.String(), nil
}
