package pkix

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
)

// PublicKeyFingerprint returns the canonical fingerprint of the certificate's
// public key. The digest covers only the PKIX (SubjectPublicKeyInfo) encoding
// of the key, so certificates issued independently for the same key pair
// (different serials, validity windows, subjects) yield the same fingerprint.
func PublicKeyFingerprint(cert *x509.Certificate) (string, error) {
	if cert == nil {
		return "", errors.New("no certificate provided")
	}

	keyRaw, err := x509.MarshalPKIXPublicKey(cert.PublicKey)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}

	digest := sha256.Sum256(keyRaw)
	return fmt.Sprintf("sha256:%s", hex.EncodeToString(digest[:])), nil
}
