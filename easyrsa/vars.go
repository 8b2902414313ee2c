package easyrsa

import (
	"fmt"
	"strings"
)

// Params are the distinguished-name and crypto settings of one issuer.
type Params struct {
	CommonName         string
	Country            string
	Province           string
	City               string
	Organization       string
	Email              string
	OrganizationalUnit string
	KeySize            int
	Algorithm          string
	Curve              string
	Digest             string
	CAExpire           int
	CertExpire         int
	CertRenewDays      int
	CRLDays            int
}

// RenderVars produces the vars file consumed by easyrsa. The line order is
// fixed; strings are double-quoted and numbers are bare.
func RenderVars(p Params, layout Layout, passphraseSize int) []byte {
	var b strings.Builder
	quoted := func(name, value string) {
		fmt.Fprintf(&b, "set_var %s \"%s\"\n", name, value)
	}
	bare := func(name string, value any) {
		fmt.Fprintf(&b, "set_var %s %v\n", name, value)
	}

	quoted("EASYRSA_REQ_COUNTRY", p.Country)
	quoted("EASYRSA_REQ_PROVINCE", p.Province)
	quoted("EASYRSA_REQ_CITY", p.City)
	quoted("EASYRSA_REQ_ORG", p.Organization)
	quoted("EASYRSA_REQ_EMAIL", p.Email)
	quoted("EASYRSA_REQ_OU", p.OrganizationalUnit)
	quoted("EASYRSA_REQ_CN", p.CommonName)
	bare("EASYRSA_KEY_SIZE", p.KeySize)
	quoted("EASYRSA_ALGO", p.Algorithm)
	quoted("EASYRSA_CURVE", p.Curve)
	quoted("EASYRSA_DIGEST", p.Digest)
	bare("EASYRSA_CA_EXPIRE", p.CAExpire)
	bare("EASYRSA_CERT_EXPIRE", p.CertExpire)
	bare("EASYRSA_CERT_RENEW", p.CertRenewDays)
	bare("EASYRSA_CRL_DAYS", p.CRLDays)
	bare("EASYRSA_CA_PASS_FILE", layout.PassphraseFile)
	bare("EASYRSA_CA_PASS_SIZE", passphraseSize)
	return []byte(b.String())
}
