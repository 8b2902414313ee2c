// Package issuance implements the certificate issuance workflow: issuer
// ("vars") records, the status state machine that orders the EasyRSA steps,
// and the certificate registry.
package issuance

import (
	"time"

	"github.com/jmcleod/ironrsa/easyrsa"
)

// Status is the issuance progress of an issuer.
type Status string

const (
	StatusCreatedVars     Status = "Created_Vars"
	StatusInitializedPKI  Status = "Initialized_PKI"
	StatusGeneratedCA     Status = "Generated_CA"
	StatusGeneratedDH     Status = "Generated_DH"
	StatusGeneratedServer Status = "Generated_Server"
	StatusGeneratedClient Status = "Generated_Client"
	StatusGeneratedTA     Status = "Generated_TA"
)

// Country is the DN country code of an issuer.
type Country string

const (
	CountryCA Country = "CA"
	CountryUS Country = "US"
)

// Algorithm is the EasyRSA key algorithm.
type Algorithm string

const (
	AlgorithmRSA Algorithm = "rsa"
	AlgorithmEC  Algorithm = "ec"
)

// Digest is the signature digest.
type Digest string

const (
	DigestMD5    Digest = "md5"
	DigestSHA1   Digest = "sha1"
	DigestSHA224 Digest = "sha224"
	DigestSHA256 Digest = "sha256"
	DigestSHA384 Digest = "sha384"
	DigestSHA512 Digest = "sha512"
)

// Category classifies a certificate record.
type Category string

const (
	CategoryCA     Category = "CA"
	CategoryServer Category = "Server"
	CategoryClient Category = "Client"
)

// Curves lists the named curves accepted for the ec algorithm.
var Curves = []string{
	"secp112r1", "secp112r2", "secp128r1", "secp128r2", "secp160k1", "secp160r1",
	"secp160r2", "secp192k1", "secp224k1", "secp224r1", "secp256k1", "secp384r1",
	"secp521r1", "prime192v1", "prime192v2", "prime192v3", "prime239v1", "prime239v2",
	"prime239v3", "prime256v1", "sect113r1", "sect113r2", "sect131r1", "sect131r2",
	"sect163k1", "sect163r1", "sect163r2", "sect193r1", "sect193r2", "sect233k1",
	"sect233r1", "sect239k1", "sect283k1", "sect283r1", "sect409k1", "sect409r1",
	"sect571k1", "sect571r1", "c2pnb163v1", "c2pnb163v2", "c2pnb163v3", "c2pnb176v1",
	"c2tnb191v1", "c2tnb191v2", "c2tnb191v3", "c2pnb208w1", "c2tnb239v1", "c2tnb239v2",
	"c2tnb239v3", "c2pnb272w1", "c2pnb304w1", "c2tnb359v1", "c2pnb368w1", "c2tnb431r1",
	"wap-wsg-idm-ecid-wtls1", "wap-wsg-idm-ecid-wtls3", "wap-wsg-idm-ecid-wtls4",
	"wap-wsg-idm-ecid-wtls5", "wap-wsg-idm-ecid-wtls6", "wap-wsg-idm-ecid-wtls7",
	"wap-wsg-idm-ecid-wtls8", "wap-wsg-idm-ecid-wtls9", "wap-wsg-idm-ecid-wtls10",
	"wap-wsg-idm-ecid-wtls11", "wap-wsg-idm-ecid-wtls12", "Oakley-EC2N-3", "Oakley-EC2N-4",
	"brainpoolP160r1", "brainpoolP160t1", "brainpoolP192r1", "brainpoolP192t1",
	"brainpoolP224r1", "brainpoolP224t1", "brainpoolP256r1", "brainpoolP256t1",
	"brainpoolP320r1", "brainpoolP320t1", "brainpoolP384r1", "brainpoolP384t1",
	"brainpoolP512r1", "brainpoolP512t1", "SM2",
}

// Defaults applied to omitted issuer parameters.
const (
	DefaultKeySize       = 2048
	DefaultAlgorithm     = AlgorithmRSA
	DefaultCurve         = "secp521r1"
	DefaultDigest        = DigestSHA256
	DefaultCAExpire      = 3650
	DefaultCertExpire    = 1080
	DefaultCertRenewDays = 30
	DefaultCRLDays       = 180
)

// IssuerParams is the caller-supplied part of an issuer. Zero numeric and
// empty enum values take the defaults above.
type IssuerParams struct {
	Country            Country   `json:"country"`
	Province           string    `json:"province"`
	City               string    `json:"city"`
	Organization       string    `json:"organization"`
	Email              string    `json:"email"`
	OrganizationalUnit string    `json:"organizationalUnit"`
	CommonName         string    `json:"commonName"`
	KeySize            int       `json:"keySize,omitempty"`
	Algorithm          Algorithm `json:"algorithm,omitempty"`
	Curve              string    `json:"curve,omitempty"`
	Digest             Digest    `json:"digest,omitempty"`
	CAExpire           int       `json:"caExpire,omitempty"`
	CertExpire         int       `json:"certExpire,omitempty"`
	CertRenewDays      int       `json:"certRenewDays,omitempty"`
	CRLDays            int       `json:"crlDays,omitempty"`
}

// Issuer is a vars record: the DN and crypto parameters of one PKI plus its
// issuance status.
type Issuer struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	IssuerParams
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Version is the storage version used for compare-and-swap updates.
	Version uint64 `json:"-"`
}

// VarsParams converts the issuer to the parameters rendered into its vars file.
func (i *Issuer) VarsParams() easyrsa.Params {
	return easyrsa.Params{
		CommonName:         i.CommonName,
		Country:            string(i.Country),
		Province:           i.Province,
		City:               i.City,
		Organization:       i.Organization,
		Email:              i.Email,
		OrganizationalUnit: i.OrganizationalUnit,
		KeySize:            i.KeySize,
		Algorithm:          string(i.Algorithm),
		Curve:              i.Curve,
		Digest:             string(i.Digest),
		CAExpire:           i.CAExpire,
		CertExpire:         i.CertExpire,
		CertRenewDays:      i.CertRenewDays,
		CRLDays:            i.CRLDays,
	}
}

// Certificate records one certificate issued under an issuer. The key
// material itself stays in the issuer's pki directory.
type Certificate struct {
	ID         string    `json:"id"`
	CommonName string    `json:"commonName"`
	Category   Category  `json:"category"`
	IssuerID   string    `json:"varsFileId"`
	DeviceID   string    `json:"deviceId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`

	// Details is read from the certificate file EasyRSA wrote, when present.
	Details *easyrsa.CertificateInfo `json:"details,omitempty"`
}
