package easyrsa

import "path/filepath"

func (l Layout) easyrsa(args ...string) Command {
	return Command{
		Dir:  l.Root,
		Name: l.Script,
		Args: append([]string{"--batch"}, args...),
		Env: []string{
			"EASYRSA_PKI=" + l.PKIDir,
			"EASYRSA_VARS_FILE=" + l.VarsFile,
		},
		LogPath: l.LogFile,
	}
}

// InitPKI creates the pki directory tree.
func (l Layout) InitPKI() Command {
	return l.easyrsa("init-pki")
}

// BuildCA builds the CA, protecting its key with the issuer's passphrase file.
func (l Layout) BuildCA(commonName string) Command {
	pass := "file:" + l.PassphraseFile
	return l.easyrsa("--req-cn="+commonName, "--passout="+pass, "--passin="+pass, "build-ca")
}

// GenDH generates Diffie-Hellman parameters.
func (l Layout) GenDH() Command {
	return l.easyrsa("gen-dh")
}

// BuildServerFull issues an unencrypted server key and certificate signed by the CA.
func (l Layout) BuildServerFull(name string) Command {
	return l.easyrsa("--passin=file:"+l.PassphraseFile, "build-server-full", name, "nopass")
}

// BuildClientFull issues an unencrypted client key and certificate signed by the CA.
func (l Layout) BuildClientFull(name string) Command {
	return l.easyrsa("--passin=file:"+l.PassphraseFile, "build-client-full", name, "nopass")
}

// GenTA writes an OpenVPN tls-auth key to pki/ta.key.
func (l Layout) GenTA(openvpn string) Command {
	return Command{
		Dir:     l.Root,
		Name:    openvpn,
		Args:    []string{"--genkey", "secret", filepath.Join(l.PKIDir, "ta.key")},
		LogPath: l.LogFile,
	}
}
