package corpus

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	minisign "github.com/jedisct1/go-minisign"
)

// SignatureSuffix is appended to a dump path to find its detached signature.
const SignatureSuffix = ".minisig"

// ErrNoSignature is returned when a dump has no detached signature next to it.
var ErrNoSignature = errors.New("corpus signature not found")

// Verifier checks dumps against detached Minisign signatures from a trusted publisher.
type Verifier struct {
	publicKey minisign.PublicKey
}

// NewVerifier parses a Minisign public key, comment line included.
func NewVerifier(pubKey string) (*Verifier, error) {
	pubKey = strings.TrimSpace(pubKey)
	if pubKey == "" {
		return nil, errors.New("minisign public key is required")
	}
	publicKey, err := minisign.DecodePublicKey(pubKey)
	if err != nil {
		return nil, fmt.Errorf("parse minisign public key: %w", err)
	}
	return &Verifier{publicKey: publicKey}, nil
}

// VerifyFile checks path against path+".minisig".
func (v *Verifier) VerifyFile(ctx context.Context, path string) error {
	return v.Verify(ctx, path, path+SignatureSuffix)
}

func (v *Verifier) Verify(ctx context.Context, path, signaturePath string) error {
	if v == nil {
		return errors.New("corpus verifier not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	signatureBytes, err := os.ReadFile(signaturePath)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNoSignature, signaturePath)
	}
	if err != nil {
		return fmt.Errorf("read signature %q: %w", signaturePath, err)
	}
	signature, err := minisign.DecodeSignature(string(signatureBytes))
	if err != nil {
		return fmt.Errorf("decode signature %q: %w", signaturePath, err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read corpus %q: %w", path, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	ok, err := v.publicKey.Verify(content, signature)
	if err != nil {
		return fmt.Errorf("verify corpus %q: %w", path, err)
	}
	if !ok {
		return fmt.Errorf("verify corpus %q: signature mismatch", path)
	}
	return nil
}
