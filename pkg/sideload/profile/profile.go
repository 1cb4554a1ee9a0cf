// Package profile parses the structured metadata embedded inside a
// provisioning profile without needing the private key.
//
// A profile is an opaque binary blob (a CMS envelope) carrying a plist
// document somewhere inside. The plist boundaries are located by substring
// search over the raw bytes. The surrounding envelope is never parsed.
package profile

import (
	"bytes"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/prostore-ios/sideloader/pkg/pkix"
	"github.com/prostore-ios/sideloader/pkg/sideload/model"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"howett.net/plist"
)

var plistStartMarker = []byte("<plist")
var plistEndMarker = []byte("</plist>")

type payload struct {
	Name                  string    `plist:"Name"`
	TeamName              string    `plist:"TeamName"`
	ExpirationDate        time.Time `plist:"ExpirationDate"`
	DeveloperCertificates [][]byte  `plist:"DeveloperCertificates"`
}

// Profile is the parsed metadata of a provisioning profile. It is immutable
// and safe for concurrent use.
type Profile struct {
	payload payload
	certs   []*x509.Certificate
}

// Parse locates the embedded plist block inside raw and decodes it.
//
// Parsing succeeds even when the profile embeds no certificates so that
// display metadata stays available; EmbeddedCertificates reports the missing
// certificates when the profile is used for matching.
func Parse(raw []byte) (*Profile, error) {
	start := bytes.Index(raw, plistStartMarker)
	if start < 0 {
		return nil, fmt.Errorf("profile has no embedded metadata block%w", model.ErrProfileMetadataNotFound)
	}
	end := bytes.Index(raw[start:], plistEndMarker)
	if end < 0 {
		return nil, fmt.Errorf("profile metadata block is not terminated%w", model.ErrProfileMetadataNotFound)
	}
	block := raw[start : start+end+len(plistEndMarker)]

	p := payload{}
	if _, err := plist.Unmarshal(block, &p); err != nil {
		return nil, fmt.Errorf("fail to decode profile metadata: %s%w", err.Error(), model.ErrInvalidParameter)
	}

	certs := make([]*x509.Certificate, 0, len(p.DeveloperCertificates))
	for _, certRaw := range p.DeveloperCertificates {
		cert, err := x509.ParseCertificate(certRaw)
		if err != nil {
			// An undecodable certificate can never match. Skip it.
			logrus.Debugf("profile.Parse(): skip undecodable embedded certificate: %v", err)
			continue
		}
		certs = append(certs, cert)
	}

	return &Profile{payload: p, certs: certs}, nil
}

// DisplayName prefers the team level name and falls back to the generic
// profile name. An empty string means unknown.
func (p *Profile) DisplayName() string {
	if p.payload.TeamName != "" {
		return p.payload.TeamName
	}
	return p.payload.Name
}

// ExpiresAt returns the profile expiry instant, or nil when the profile does
// not carry one. Callers must treat nil as unknown, never as expired or valid.
func (p *Profile) ExpiresAt() *time.Time {
	if p.payload.ExpirationDate.IsZero() {
		return nil
	}
	expiry := p.payload.ExpirationDate
	return &expiry
}

// EmbeddedCertificates returns the decodable certificates embedded in the
// profile. A usable profile embeds at least one entry; an entry that fails to
// decode is skipped rather than fatal, so the result may be shorter than the
// embedded list or even empty.
func (p *Profile) EmbeddedCertificates() ([]*x509.Certificate, error) {
	if len(p.payload.DeveloperCertificates) == 0 {
		return nil, fmt.Errorf("profile embeds no certificates%w", model.ErrNoCertificatesInProfile)
	}
	return p.certs, nil
}

// CertificateFingerprints returns the canonical public key fingerprints of
// the embedded certificates. Certificates whose public key cannot be exported
// are skipped.
func (p *Profile) CertificateFingerprints() []string {
	return lo.FilterMap(p.certs, func(cert *x509.Certificate, _ int) (string, bool) {
		fingerprint, err := pkix.PublicKeyFingerprint(cert)
		if err != nil {
			logrus.Debugf("profile.CertificateFingerprints(): skip certificate: %v", err)
			return "", false
		}
		return fingerprint, true
	})
}

// Info returns the user-facing metadata of the profile.
func (p *Profile) Info() model.ProfileInfo {
	return model.ProfileInfo{
		DisplayName:             p.DisplayName(),
		ExpiresAt:               p.ExpiresAt(),
		CertificateFingerprints: p.CertificateFingerprints(),
	}
}

// DisplayName extracts the display name from a raw profile. It returns an
// empty string when the profile cannot be parsed or carries no name.
func DisplayName(raw []byte) string {
	p, err := Parse(raw)
	if err != nil {
		return ""
	}
	return p.DisplayName()
}

// ExpiresAt extracts the expiry instant from a raw profile. It returns nil
// when the profile cannot be parsed or carries no expiry.
func ExpiresAt(raw []byte) *time.Time {
	p, err := Parse(raw)
	if err != nil {
		return nil
	}
	return p.ExpiresAt()
}
