package profile_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	gopkix "crypto/x509/pkix"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/prostore-ios/sideloader/pkg/sideload/model"
	"github.com/prostore-ios/sideloader/pkg/sideload/profile"
	"github.com/stretchr/testify/suite"
	"howett.net/plist"
)

type ProfileTestSuite struct {
	suite.Suite

	key  *rsa.PrivateKey
	cert *x509.Certificate
}

func TestProfileTestSuite(t *testing.T) {
	suite.Run(t, new(ProfileTestSuite))
}

func (s *ProfileTestSuite) SetupSuite() {
	var err error
	s.key, err = rsa.GenerateKey(rand.Reader, 2048)
	s.Require().NoError(err)
	s.cert = s.makeCert(s.key, 1, "Developer Certificate")
}

func (s *ProfileTestSuite) makeCert(key *rsa.PrivateKey, serial int64, commonName string) *x509.Certificate {
	template := x509.Certificate{
		SerialNumber:          big.NewInt(serial),
		Subject:               gopkix.Name{CommonName: commonName},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	s.Require().NoError(err)
	cert, err := x509.ParseCertificate(der)
	s.Require().NoError(err)
	return cert
}

// buildProfile wraps a plist payload between opaque envelope bytes the way a
// real provisioning profile embeds its metadata inside a CMS blob.
func (s *ProfileTestSuite) buildProfile(payload map[string]interface{}) []byte {
	plistRaw, err := plist.Marshal(payload, plist.XMLFormat)
	s.Require().NoError(err)

	profileRaw := append([]byte{0x30, 0x82, 0x01, 0x02, 0x06, 0x09}, plistRaw...)
	return append(profileRaw, 0x31, 0x82, 0x00, 0xff)
}

func (s *ProfileTestSuite) TestDisplayNamePrefersTeamName() {
	raw := s.buildProfile(map[string]interface{}{
		"Name":                  "My App Ad Hoc",
		"TeamName":              "ACME Corp",
		"DeveloperCertificates": [][]byte{s.cert.Raw},
	})

	prof, err := profile.Parse(raw)
	s.Require().NoError(err)
	s.Assert().Equal("ACME Corp", prof.DisplayName())
	s.Assert().Equal("ACME Corp", profile.DisplayName(raw))
}

func (s *ProfileTestSuite) TestDisplayNameFallsBackToName() {
	raw := s.buildProfile(map[string]interface{}{
		"Name":                  "My App Ad Hoc",
		"DeveloperCertificates": [][]byte{s.cert.Raw},
	})

	prof, err := profile.Parse(raw)
	s.Require().NoError(err)
	s.Assert().Equal("My App Ad Hoc", prof.DisplayName())
}

func (s *ProfileTestSuite) TestDisplayNameUnknown() {
	raw := s.buildProfile(map[string]interface{}{
		"DeveloperCertificates": [][]byte{s.cert.Raw},
	})

	prof, err := profile.Parse(raw)
	s.Require().NoError(err)
	s.Assert().Empty(prof.DisplayName())
	s.Assert().Empty(profile.DisplayName([]byte("no metadata here")))
}

func (s *ProfileTestSuite) TestExpiresAt() {
	expiry := time.Date(2027, 4, 1, 12, 0, 0, 0, time.UTC)
	raw := s.buildProfile(map[string]interface{}{
		"Name":                  "My App Ad Hoc",
		"ExpirationDate":        expiry,
		"DeveloperCertificates": [][]byte{s.cert.Raw},
	})

	prof, err := profile.Parse(raw)
	s.Require().NoError(err)
	s.Require().NotNil(prof.ExpiresAt())
	s.Assert().True(prof.ExpiresAt().Equal(expiry))

	// Absence means unknown, not expired.
	withoutExpiry := s.buildProfile(map[string]interface{}{
		"Name":                  "My App Ad Hoc",
		"DeveloperCertificates": [][]byte{s.cert.Raw},
	})
	prof, err = profile.Parse(withoutExpiry)
	s.Require().NoError(err)
	s.Assert().Nil(prof.ExpiresAt())
	s.Assert().Nil(profile.ExpiresAt([]byte("no metadata here")))
}

func (s *ProfileTestSuite) TestEmbeddedCertificates() {
	raw := s.buildProfile(map[string]interface{}{
		"Name": "My App Ad Hoc",
		"DeveloperCertificates": [][]byte{
			s.cert.Raw,
			{0x01, 0x02, 0x03}, // Undecodable entry is skipped, not fatal.
		},
	})

	prof, err := profile.Parse(raw)
	s.Require().NoError(err)
	certs, err := prof.EmbeddedCertificates()
	s.Require().NoError(err)
	s.Require().Len(certs, 1)
	s.Assert().Equal(s.cert.SerialNumber.String(), certs[0].SerialNumber.String())
	s.Assert().Len(prof.CertificateFingerprints(), 1)
}

func (s *ProfileTestSuite) TestAllCertificatesUndecodable() {
	// A non-empty embedded list whose entries all fail to decode is not the
	// same as an empty list: the entries simply never match.
	raw := s.buildProfile(map[string]interface{}{
		"Name": "My App Ad Hoc",
		"DeveloperCertificates": [][]byte{
			{0x01, 0x02, 0x03},
			{0x04, 0x05, 0x06},
		},
	})

	prof, err := profile.Parse(raw)
	s.Require().NoError(err)
	certs, err := prof.EmbeddedCertificates()
	s.Require().NoError(err)
	s.Assert().Empty(certs)
	s.Assert().Empty(prof.CertificateFingerprints())
}

func (s *ProfileTestSuite) TestNoCertificates() {
	raw := s.buildProfile(map[string]interface{}{
		"Name": "My App Ad Hoc",
	})

	prof, err := profile.Parse(raw)
	s.Require().NoError(err)
	_, err = prof.EmbeddedCertificates()
	s.Require().Error(err)
	s.Assert().True(errors.Is(err, model.ErrNoCertificatesInProfile))
}

func (s *ProfileTestSuite) TestNoMetadataBlock() {
	_, err := profile.Parse([]byte("random bytes without any markers"))
	s.Require().Error(err)
	s.Assert().True(errors.Is(err, model.ErrProfileMetadataNotFound))

	// Start marker without a terminator.
	_, err = profile.Parse([]byte("garbage <plist version=\"1.0\"><dict>"))
	s.Require().Error(err)
	s.Assert().True(errors.Is(err, model.ErrProfileMetadataNotFound))
}

func (s *ProfileTestSuite) TestParseIsIdempotent() {
	raw := s.buildProfile(map[string]interface{}{
		"TeamName":              "ACME Corp",
		"DeveloperCertificates": [][]byte{s.cert.Raw},
	})

	first, err := profile.Parse(raw)
	s.Require().NoError(err)
	second, err := profile.Parse(raw)
	s.Require().NoError(err)
	s.Assert().Equal(first.DisplayName(), second.DisplayName())
	s.Assert().Equal(first.CertificateFingerprints(), second.CertificateFingerprints())
}
