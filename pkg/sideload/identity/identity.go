// Package identity verifies that a PKCS#12 identity container and a
// provisioning profile form a usable signing pair.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/prostore-ios/sideloader/pkg/pkix"
	"github.com/prostore-ios/sideloader/pkg/sideload/model"
	"github.com/prostore-ios/sideloader/pkg/sideload/profile"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	pkcs12 "software.sslmate.com/src/go-pkcs12"
)

type Matcher interface {
	// Verify reports whether the identity container and the profile belong to
	// the same key pair. The comparison is over canonical public key
	// fingerprints, never whole certificates: profiles and identities are
	// issued independently and may carry different serials or validity windows
	// for what is cryptographically the same key.
	Verify(ctx context.Context, req VerifyRequest) (model.MatchResult, error)
}

type VerifyRequest struct {
	Identity   []byte `json:"identity"` // Raw PKCS#12 container.
	Passphrase string `json:"-"`        // Never serialized or logged.
	Profile    []byte `json:"profile"`  // Raw provisioning profile.
}

type _Matcher struct {
}

func NewMatcher() *_Matcher {
	return &_Matcher{}
}

func (m *_Matcher) Verify(ctx context.Context, req VerifyRequest) (model.MatchResult, error) {
	if err := ValidateVerifyRequest(req); err != nil {
		return "", err
	}

	_, leafCert, _, err := pkcs12.DecodeChain(req.Identity, req.Passphrase)
	if errors.Is(err, pkcs12.ErrIncorrectPassword) {
		// The container is well-formed but the passphrase is wrong. This is a
		// first-class outcome so callers can re-prompt for a passphrase
		// instead of a new file.
		return model.MatchResultWrongPassphrase, nil
	}
	if err != nil {
		return "", fmt.Errorf("fail to open identity container: %s%w", err.Error(), model.ErrInvalidIdentity)
	}
	if leafCert == nil {
		return "", fmt.Errorf("identity container has no certificate%w", model.ErrIdentityExtraction)
	}

	identityFingerprint, err := pkix.PublicKeyFingerprint(leafCert)
	if err != nil {
		return "", fmt.Errorf("fail to fingerprint identity certificate: %s%w", err.Error(), model.ErrIdentityExtraction)
	}

	prof, err := profile.Parse(req.Profile)
	if err != nil {
		return "", err
	}
	if _, err := prof.EmbeddedCertificates(); err != nil {
		return "", err
	}

	if lo.Contains(prof.CertificateFingerprints(), identityFingerprint) {
		return model.MatchResultMatched, nil
	}

	logrus.Debugf("identity.Verify(): no embedded certificate shares key %s", identityFingerprint)
	return model.MatchResultNoCertificate, nil
}
