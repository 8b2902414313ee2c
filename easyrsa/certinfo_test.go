package easyrsa

import (
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/ironrsa/internal/util"
)

func TestReadCertificateInfo(t *testing.T) {
	cert, err := util.GenerateSelfSignedCert()
	require.NoError(t, err)

	// build-client-full output starts with an openssl text dump.
	var content []byte
	content = append(content, "Certificate:\n    Data:\n        Version: 3 (0x2)\n"...)
	content = append(content, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Certificate[0]})...)

	layout := Layout{PKIDir: t.TempDir()}
	path := layout.IssuedCertPath("alice.example.org")
	assert.Equal(t, filepath.Join(layout.PKIDir, "issued", "alice.example.org.crt"), path)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, content, 0o644))

	info, err := ReadCertificateInfo(path)
	require.NoError(t, err)
	assert.Equal(t, "ECDSA P-256", info.KeyAlgorithm)
	assert.Len(t, info.FingerprintSHA256, 64)
	assert.NotEmpty(t, info.SerialNumber)
	assert.Contains(t, info.Subject, "CN=localhost")
	assert.False(t, info.Expired(time.Now()))
	assert.True(t, info.Expired(info.NotAfter.Add(time.Second)))
}

func TestParseCertificatePEM_Invalid(t *testing.T) {
	_, err := ParseCertificatePEM([]byte("not pem"))
	assert.ErrorIs(t, err, ErrInvalidPEM)

	key := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: []byte{1, 2, 3}})
	_, err = ParseCertificatePEM(key)
	assert.ErrorIs(t, err, ErrInvalidPEM)

	bad := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte{1, 2, 3}})
	_, err = ParseCertificatePEM(bad)
	assert.ErrorIs(t, err, ErrInvalidPEM)
}

func TestReadCertificateInfo_Missing(t *testing.T) {
	_, err := ReadCertificateInfo(Layout{PKIDir: t.TempDir()}.CACertPath())
	assert.ErrorIs(t, err, os.ErrNotExist)
}
