package easyrsa

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmcleod/ironrsa/internal/util"
)

// ErrInvalidPEM is returned when a file does not hold a PEM certificate.
var ErrInvalidPEM = errors.New("invalid PEM certificate")

// CertificateInfo summarizes an issued x509 certificate.
type CertificateInfo struct {
	Subject           string    `json:"subject"`
	Issuer            string    `json:"issuer"`
	SerialNumber      string    `json:"serialNumber"`
	NotBefore         time.Time `json:"notBefore"`
	NotAfter          time.Time `json:"notAfter"`
	FingerprintSHA256 string    `json:"fingerprintSha256"`
	KeyAlgorithm      string    `json:"keyAlgorithm"`
}

// Expired reports whether at falls outside the validity window.
func (c *CertificateInfo) Expired(at time.Time) bool {
	return at.Before(c.NotBefore) || at.After(c.NotAfter)
}

// CACertPath is where build-ca writes the CA certificate.
func (l Layout) CACertPath() string {
	return filepath.Join(l.PKIDir, "ca.crt")
}

// IssuedCertPath is where build-server-full and build-client-full write the
// certificate for name.
func (l Layout) IssuedCertPath(name string) string {
	return filepath.Join(l.PKIDir, "issued", name+".crt")
}

// ReadCertificateInfo parses the certificate file at path. EasyRSA prefixes
// issued certificates with a text dump, so the first CERTIFICATE block wins.
func ReadCertificateInfo(path string) (*CertificateInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseCertificatePEM(data)
}

// ParseCertificatePEM decodes the first CERTIFICATE block in data.
func ParseCertificatePEM(data []byte) (*CertificateInfo, error) {
	var block *pem.Block
	for {
		block, data = pem.Decode(data)
		if block == nil {
			return nil, ErrInvalidPEM
		}
		if block.Type == "CERTIFICATE" {
			break
		}
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPEM, err)
	}

	fingerprint := sha256.Sum256(block.Bytes)
	return &CertificateInfo{
		Subject:           subjectString(cert.Subject),
		Issuer:            subjectString(cert.Issuer),
		SerialNumber:      util.HexEncode(cert.SerialNumber.Bytes()),
		NotBefore:         cert.NotBefore.UTC(),
		NotAfter:          cert.NotAfter.UTC(),
		FingerprintSHA256: util.HexEncode(fingerprint[:]),
		KeyAlgorithm:      keyAlgorithmString(cert),
	}, nil
}

func subjectString(name pkix.Name) string {
	var parts []string
	if name.CommonName != "" {
		parts = append(parts, "CN="+name.CommonName)
	}
	for _, ou := range name.OrganizationalUnit {
		parts = append(parts, "OU="+ou)
	}
	for _, o := range name.Organization {
		parts = append(parts, "O="+o)
	}
	for _, l := range name.Locality {
		parts = append(parts, "L="+l)
	}
	for _, p := range name.Province {
		parts = append(parts, "ST="+p)
	}
	for _, c := range name.Country {
		parts = append(parts, "C="+c)
	}
	return strings.Join(parts, ", ")
}

func keyAlgorithmString(cert *x509.Certificate) string {
	switch pub := cert.PublicKey.(type) {
	case *ecdsa.PublicKey:
		return "ECDSA " + pub.Curve.Params().Name
	case *rsa.PublicKey:
		return fmt.Sprintf("RSA %d", pub.N.BitLen())
	default:
		return cert.PublicKeyAlgorithm.String()
	}
}
