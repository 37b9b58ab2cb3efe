package server

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/ssh"
	"golang.org/x/term"

	lserr "linesrv/internal/errors"
)

// LoadHostKey reads a PEM private key from path.  An encrypted key is
// decrypted with the bytes returned by passphrase.  An empty path
// yields a freshly generated ed25519 key.
func LoadHostKey(path string, passphrase func() ([]byte, error)) (ssh.Signer, error) {
	if path == "" {
		return GenerateHostKey()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, lserr.WrapSSH("hostkey", path, err)
	}

	signer, err := ssh.ParsePrivateKey(data)
	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) && passphrase != nil {
		pass, perr := passphrase()
		if perr != nil {
			return nil, lserr.WrapSSH("hostkey", path, fmt.Errorf("reading passphrase: %w", perr))
		}
		signer, err = ssh.ParsePrivateKeyWithPassphrase(data, pass)
	}
	if err != nil {
		return nil, lserr.WrapSSH("hostkey", path, fmt.Errorf("%w: %v", lserr.ErrBadHostKey, err))
	}
	return signer, nil
}

// GenerateHostKey returns an ephemeral ed25519 host key.
func GenerateHostKey() (ssh.Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, lserr.WrapSSH("hostkey", "ephemeral", err)
	}
	return ssh.NewSignerFromKey(priv)
}

// TerminalPassphrase prints prompt to stderr and reads a passphrase
// from the terminal without echo.
func TerminalPassphrase(prompt string) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	pass, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	return pass, err
}

func fingerprint(s ssh.Signer) string {
	return ssh.FingerprintSHA256(s.PublicKey())
}
