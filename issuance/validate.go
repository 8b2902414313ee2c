package issuance

import (
	"net/mail"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jmcleod/ironrsa/internal/util"
)

const (
	// MaxCommonNameLength matches the X.509 upper bound for CN.
	MaxCommonNameLength = 64
	maxFieldLength      = 128
	minKeySize          = 1024
	maxKeySize          = 16384
)

// NormalizeCommonName trims and NFC-normalizes a common name so that
// visually identical names map to the same registry key and directory.
func NormalizeCommonName(cn string) string {
	return util.Normalize(cn)
}

// normalize applies defaults and canonical forms in place.
func (p *IssuerParams) normalize() {
	p.CommonName = NormalizeCommonName(p.CommonName)
	p.Province = strings.TrimSpace(p.Province)
	p.City = strings.TrimSpace(p.City)
	p.Organization = strings.TrimSpace(p.Organization)
	p.Email = strings.TrimSpace(p.Email)
	p.OrganizationalUnit = strings.TrimSpace(p.OrganizationalUnit)
	p.Country = Country(strings.TrimSpace(string(p.Country)))
	if p.KeySize == 0 {
		p.KeySize = DefaultKeySize
	}
	if p.Algorithm == "" {
		p.Algorithm = DefaultAlgorithm
	}
	if p.Curve == "" {
		p.Curve = DefaultCurve
	}
	if p.Digest == "" {
		p.Digest = DefaultDigest
	}
	if p.CAExpire == 0 {
		p.CAExpire = DefaultCAExpire
	}
	if p.CertExpire == 0 {
		p.CertExpire = DefaultCertExpire
	}
	if p.CertRenewDays == 0 {
		p.CertRenewDays = DefaultCertRenewDays
	}
	if p.CRLDays == 0 {
		p.CRLDays = DefaultCRLDays
	}
}

// Validate checks normalized parameters.
func (p *IssuerParams) Validate() error {
	if err := validateCommonName(p.CommonName, "commonName"); err != nil {
		return err
	}
	switch p.Country {
	case CountryCA, CountryUS:
	case "":
		return validationErrorf("country", "is required")
	default:
		return validationErrorf("country", "must be one of CA, US")
	}
	for _, f := range []struct {
		name, value string
	}{
		{"province", p.Province},
		{"city", p.City},
		{"organization", p.Organization},
		{"email", p.Email},
		{"organizationalUnit", p.OrganizationalUnit},
	} {
		if err := validateDNField(f.name, f.value); err != nil {
			return err
		}
	}
	if _, err := mail.ParseAddress(p.Email); err != nil {
		return validationErrorf("email", "is not a valid address")
	}
	if p.KeySize < minKeySize || p.KeySize > maxKeySize {
		return validationErrorf("keySize", "must be between %d and %d", minKeySize, maxKeySize)
	}
	switch p.Algorithm {
	case AlgorithmRSA, AlgorithmEC:
	default:
		return validationErrorf("algorithm", "must be one of rsa, ec")
	}
	if !slices.Contains(Curves, p.Curve) {
		return validationErrorf("curve", "%q is not a supported curve", p.Curve)
	}
	switch p.Digest {
	case DigestMD5, DigestSHA1, DigestSHA224, DigestSHA256, DigestSHA384, DigestSHA512:
	default:
		return validationErrorf("digest", "must be one of md5, sha1, sha224, sha256, sha384, sha512")
	}
	for _, f := range []struct {
		name  string
		value int
	}{
		{"caExpire", p.CAExpire},
		{"certExpire", p.CertExpire},
		{"certRenewDays", p.CertRenewDays},
		{"crlDays", p.CRLDays},
	} {
		if f.value <= 0 {
			return validationErrorf(f.name, "must be a positive number of days")
		}
	}
	return nil
}

// validateDNField rejects values that would break out of a double-quoted
// set_var line in the shell-sourced vars file.
func validateDNField(field, value string) error {
	if value == "" {
		return validationErrorf(field, "is required")
	}
	if len(value) > maxFieldLength {
		return validationErrorf(field, "exceeds maximum length of %d", maxFieldLength)
	}
	if !utf8.ValidString(value) {
		return validationErrorf(field, "contains invalid UTF-8")
	}
	for _, r := range value {
		if strings.ContainsRune("\"$`\\", r) {
			return validationErrorf(field, "contains forbidden character %q", r)
		}
		if unicode.IsControl(r) {
			return validationErrorf(field, "contains control character")
		}
	}
	return nil
}

// validateCommonName also guards the name's second use as a directory name
// and command argument.
func validateCommonName(cn, field string) error {
	if cn == "" {
		return validationErrorf(field, "is required")
	}
	if utf8.RuneCountInString(cn) > MaxCommonNameLength {
		return validationErrorf(field, "exceeds maximum length of %d", MaxCommonNameLength)
	}
	if err := validateDNField(field, cn); err != nil {
		return err
	}
	if cn == "." || cn == ".." || strings.HasPrefix(cn, "-") {
		return validationErrorf(field, "%q is not allowed", cn)
	}
	for _, r := range cn {
		if r == '/' || r == '\'' || unicode.IsSpace(r) {
			return validationErrorf(field, "contains forbidden character %q", r)
		}
	}
	return nil
}

// certificateName returns the fully qualified common name of a server or
// client certificate.
func certificateName(name string, issuer *Issuer) (string, error) {
	name = NormalizeCommonName(name)
	if err := validateCommonName(name, "name"); err != nil {
		return "", err
	}
	fq := name + "." + issuer.CommonName
	if utf8.RuneCountInString(fq) > MaxCommonNameLength {
		return "", validationErrorf("name", "%q exceeds maximum common name length of %d", fq, MaxCommonNameLength)
	}
	return fq, nil
}
