package sshpool

import (
	"encoding/base64"
	"fmt"
	"os"

	"golang.org/x/crypto/ssh"

	"github.com/mkvold/shellbridge/internal/registry"
)

// authMethods resolves a descriptor's credential to SSH auth methods.
// Key material takes precedence over a password when both are somehow set;
// config validation rejects that combination at startup.
func authMethods(d registry.Descriptor) ([]ssh.AuthMethod, error) {
	switch {
	case d.PrivateKeyPath != "":
		pem, err := os.ReadFile(d.PrivateKeyPath)
		if err != nil {
			return nil, &CredentialError{Slug: d.Slug, Err: fmt.Errorf("read private key %s: %w", d.PrivateKeyPath, err)}
		}
		signer, err := parseSigner(d.Slug, pem, d.Passphrase)
		if err != nil {
			return nil, err
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil

	case d.PrivateKey != "":
		pem, err := base64.StdEncoding.DecodeString(d.PrivateKey)
		if err != nil {
			return nil, &CredentialError{Slug: d.Slug, Err: fmt.Errorf("decode private key: %w", err)}
		}
		signer, err := parseSigner(d.Slug, pem, d.Passphrase)
		if err != nil {
			return nil, err
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil

	case d.Password != "":
		return []ssh.AuthMethod{ssh.Password(d.Password)}, nil

	default:
		return nil, fmt.Errorf("%w for server %q", ErrNoCredential, d.Slug)
	}
}

func parseSigner(slug string, pem []byte, passphrase string) (ssh.Signer, error) {
	var signer ssh.Signer
	var err error
	if passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, []byte(passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(pem)
	}
	if err != nil {
		return nil, &CredentialError{Slug: slug, Err: fmt.Errorf("parse private key: %w", err)}
	}
	return signer, nil
}
