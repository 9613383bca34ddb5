package feed

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"

	"github.com/oshokin/bootstrap-builder/internal/apperr"
	"github.com/oshokin/bootstrap-builder/internal/fetch"
	"github.com/oshokin/bootstrap-builder/internal/logger"
	"github.com/oshokin/bootstrap-builder/internal/progress"
)

// ErrUnsigned is returned by Verify for feeds without a signature.
var ErrUnsigned = errors.New("feed is not signed")

// Resolver downloads feeds and checks their signatures.
type Resolver struct {
	Fetcher fetch.Fetcher
	// Keyring holds trusted keys; without it no fingerprint is reported.
	Keyring openpgp.EntityList
	// Reporter shows the feed download; nil discards progress.
	Reporter progress.Reporter
}

// Resolve downloads the feed at uri and returns its descriptor and the
// fingerprint of a trusted signer, or "" when none could be established.
func (r *Resolver) Resolve(ctx context.Context, uri string) (*Descriptor, string, error) {
	var buf bytes.Buffer

	if err := r.Fetcher.Fetch(ctx, uri, &buf, r.Reporter); err != nil {
		return nil, "", err
	}

	desc, err := Parse(buf.Bytes())
	if err != nil {
		return nil, "", apperr.Malformed("parse feed "+uri, err)
	}

	if desc.URI == "" {
		desc.URI = uri
	}

	fingerprint, err := Verify(buf.Bytes(), r.Keyring)
	switch {
	case err == nil:
		logger.DebugKV(ctx, "Feed signature verified", "uri", uri, "fingerprint", fingerprint)
	case len(r.Keyring) == 0:
		logger.DebugKV(ctx, "No trusted keys configured, key fingerprint left empty", "uri", uri)
	default:
		logger.WarnKV(ctx, "Feed signature not trusted, key fingerprint left empty", "uri", uri, "error", err)
	}

	return desc, fingerprint, nil
}

// Verify checks the detached signature of a raw feed against keyring and
// returns the signer fingerprint in uppercase hex.
func Verify(raw []byte, keyring openpgp.EntityList) (string, error) {
	signed := Split(raw)
	if signed.Signature == "" {
		return "", ErrUnsigned
	}

	signature, err := base64.StdEncoding.DecodeString(signed.Signature)
	if err != nil {
		return "", fmt.Errorf("decode signature: %w", err)
	}

	signer, err := openpgp.CheckDetachedSignature(keyring, bytes.NewReader(signed.Data), bytes.NewReader(signature), nil)
	if err != nil {
		return "", fmt.Errorf("check signature: %w", err)
	}

	return Fingerprint(signer), nil
}

// Fingerprint formats the primary key fingerprint of e.
func Fingerprint(e *openpgp.Entity) string {
	return strings.ToUpper(hex.EncodeToString(e.PrimaryKey.Fingerprint))
}

// LoadKeyring reads an armored keyring. An empty path yields no keys.
func LoadKeyring(path string) (openpgp.EntityList, error) {
	if path == "" {
		return nil, nil
	}

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, apperr.Input("open trusted keys", err)
	}

	defer f.Close() //nolint:errcheck // Read-only handle.

	keyring, err := openpgp.ReadArmoredKeyRing(f)
	if err != nil {
		return nil, apperr.Malformed("read trusted keys", err)
	}

	return keyring, nil
}
