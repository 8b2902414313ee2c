package issuance

import (
	"context"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/ironrsa/internal/util"
	"github.com/jmcleod/ironrsa/internal/uuid"
)

const owner = "user-1"

func TestManager_Workflow(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	m := env.manager

	iss, err := m.CreateIssuer(ctx, owner, exampleParams("example.org"))
	require.NoError(t, err)
	assert.Equal(t, StatusCreatedVars, iss.Status)
	assert.NotEmpty(t, iss.ID)
	assert.True(t, env.provisioner.Exists("example.org"))

	out, err := m.InitPKI(ctx, owner, iss.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInitializedPKI, out.Issuer.Status)
	assert.Nil(t, out.Certificate)

	out, err = m.GenerateCA(ctx, owner, iss.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusGeneratedCA, out.Issuer.Status)
	require.NotNil(t, out.Certificate)
	assert.Equal(t, "example.org", out.Certificate.CommonName)
	assert.Equal(t, CategoryCA, out.Certificate.Category)
	assert.Equal(t, iss.ID, out.Certificate.IssuerID)

	out, err = m.GenerateDH(ctx, owner, iss.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusGeneratedDH, out.Issuer.Status)

	out, err = m.GenerateServer(ctx, owner, iss.ID, "vpn")
	require.NoError(t, err)
	assert.Equal(t, StatusGeneratedServer, out.Issuer.Status)
	assert.Equal(t, "vpn.example.org", out.Certificate.CommonName)
	assert.Equal(t, CategoryServer, out.Certificate.Category)

	out, err = m.GenerateTA(ctx, owner, iss.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusGeneratedTA, out.Issuer.Status)

	out, err = m.GenerateClient(ctx, owner, iss.ID, "alice", "laptop-01")
	require.NoError(t, err)
	assert.Equal(t, StatusGeneratedClient, out.Issuer.Status)
	assert.Equal(t, "alice.example.org", out.Certificate.CommonName)
	assert.Equal(t, "laptop-01", out.Certificate.DeviceID)

	// Terminal steps may repeat in any order.
	_, err = m.GenerateServer(ctx, owner, iss.ID, "vpn2")
	require.NoError(t, err)

	certs, err := m.ListCertificates(ctx, owner, iss.ID)
	require.NoError(t, err)
	assert.Len(t, certs, 4)

	got, err := m.GetIssuer(ctx, owner, iss.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusGeneratedServer, got.Status)

	assert.Equal(t, []string{
		"--batch init-pki",
		"--batch --req-cn=example.org --passout=file:" + filepath.Join(env.root, "example.org", "ca.passphrase") +
			" --passin=file:" + filepath.Join(env.root, "example.org", "ca.passphrase") + " build-ca",
		"--batch gen-dh",
		"--batch --passin=file:" + filepath.Join(env.root, "example.org", "ca.passphrase") + " build-server-full vpn.example.org nopass",
		"--genkey secret " + filepath.Join(env.root, "example.org", "pki", "ta.key"),
		"--batch --passin=file:" + filepath.Join(env.root, "example.org", "ca.passphrase") + " build-client-full alice.example.org nopass",
		"--batch --passin=file:" + filepath.Join(env.root, "example.org", "ca.passphrase") + " build-server-full vpn2.example.org nopass",
	}, env.runner.commands())

	log, err := m.ReadLog(ctx, owner, iss.ID)
	require.NoError(t, err)
	assert.Contains(t, string(log), "ok [")
}

func TestManager_GenerateCA_UnknownIssuer(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.manager.GenerateCA(t.Context(), owner, "does-not-exist")
	require.ErrorIs(t, err, ErrIssuerNotFound)
	assert.Contains(t, err.Error(), "no matching vars record")
	assert.Empty(t, env.runner.commands())

	taken, err := env.store.CertificateNameTaken("does-not-exist")
	require.NoError(t, err)
	assert.False(t, taken)

	// Well-formed but unknown ids take the storage path.
	_, err = env.manager.GenerateCA(t.Context(), owner, uuid.New())
	require.ErrorIs(t, err, ErrIssuerNotFound)
	_, err = env.manager.GetCertificate(t.Context(), owner, "not-a-uuid")
	require.ErrorIs(t, err, ErrCertificateNotFound)
}

func TestManager_OutOfOrderStep(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	iss, err := env.manager.CreateIssuer(ctx, owner, exampleParams("example.org"))
	require.NoError(t, err)

	for _, run := range []func() (*Outcome, error){
		func() (*Outcome, error) { return env.manager.GenerateCA(ctx, owner, iss.ID) },
		func() (*Outcome, error) { return env.manager.GenerateDH(ctx, owner, iss.ID) },
		func() (*Outcome, error) { return env.manager.GenerateServer(ctx, owner, iss.ID, "vpn") },
		func() (*Outcome, error) { return env.manager.GenerateTA(ctx, owner, iss.ID) },
	} {
		_, err := run()
		assert.ErrorIs(t, err, ErrInvalidTransition)
	}
	assert.Empty(t, env.runner.commands())

	got, err := env.manager.GetIssuer(ctx, owner, iss.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCreatedVars, got.Status)

	_, err = env.manager.InitPKI(ctx, owner, iss.ID)
	require.NoError(t, err)
	_, err = env.manager.InitPKI(ctx, owner, iss.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition, "init-pki must not run twice")
}

func advanceToDH(t *testing.T, m *Manager, id string) {
	t.Helper()
	ctx := t.Context()
	_, err := m.InitPKI(ctx, owner, id)
	require.NoError(t, err)
	_, err = m.GenerateCA(ctx, owner, id)
	require.NoError(t, err)
	_, err = m.GenerateDH(ctx, owner, id)
	require.NoError(t, err)
}

func TestManager_DuplicateCertificate(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	iss, err := env.manager.CreateIssuer(ctx, owner, exampleParams("example.org"))
	require.NoError(t, err)
	advanceToDH(t, env.manager, iss.ID)

	_, err = env.manager.GenerateClient(ctx, owner, iss.ID, "alice", "")
	require.NoError(t, err)
	before := len(env.runner.commands())

	_, err = env.manager.GenerateClient(ctx, owner, iss.ID, "alice", "")
	require.ErrorIs(t, err, ErrDuplicate)
	assert.Len(t, env.runner.commands(), before, "no command may run for a duplicate name")

	// Server and client names share one namespace.
	_, err = env.manager.GenerateServer(ctx, owner, iss.ID, "alice")
	require.ErrorIs(t, err, ErrDuplicate)

	certs, err := env.manager.ListCertificates(ctx, owner, iss.ID)
	require.NoError(t, err)
	assert.Len(t, certs, 2)
}

func TestManager_CreateIssuer_DuplicateCommonName(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	_, err := env.manager.CreateIssuer(ctx, owner, exampleParams("caf\u00e9.example"))
	require.NoError(t, err)

	// Decomposed form of the same name.
	_, err = env.manager.CreateIssuer(ctx, "user-2", exampleParams("cafe\u0301.example"))
	require.ErrorIs(t, err, ErrDuplicate)

	list, err := env.manager.ListIssuers(ctx, "user-2")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestManager_CreateIssuer_Defaults(t *testing.T) {
	env := newTestEnv(t)
	iss, err := env.manager.CreateIssuer(t.Context(), owner, IssuerParams{
		Country: CountryUS, Province: "Ontario", City: "Toronto", Organization: "Example",
		Email: "pki@example.org", OrganizationalUnit: "Ops", CommonName: "  example.org ",
	})
	require.NoError(t, err)
	assert.Equal(t, "example.org", iss.CommonName)
	assert.Equal(t, CountryUS, iss.Country)
	assert.Equal(t, DefaultKeySize, iss.KeySize)
	assert.Equal(t, AlgorithmRSA, iss.Algorithm)
	assert.Equal(t, "secp521r1", iss.Curve)
	assert.Equal(t, DigestSHA256, iss.Digest)
	assert.Equal(t, 3650, iss.CAExpire)
	assert.Equal(t, 1080, iss.CertExpire)
	assert.Equal(t, 30, iss.CertRenewDays)
	assert.Equal(t, 180, iss.CRLDays)
}

func TestManager_CreateIssuer_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		mutate func(*IssuerParams)
	}{
		{"missing common name", func(p *IssuerParams) { p.CommonName = "" }},
		{"path in common name", func(p *IssuerParams) { p.CommonName = "../etc" }},
		{"space in common name", func(p *IssuerParams) { p.CommonName = "a b" }},
		{"dot common name", func(p *IssuerParams) { p.CommonName = ".." }},
		{"quote in province", func(p *IssuerParams) { p.Province = `On"tario` }},
		{"dollar in city", func(p *IssuerParams) { p.City = "$(reboot)" }},
		{"backtick in org", func(p *IssuerParams) { p.Organization = "`id`" }},
		{"newline in ou", func(p *IssuerParams) { p.OrganizationalUnit = "a\nb" }},
		{"missing city", func(p *IssuerParams) { p.City = "" }},
		{"bad email", func(p *IssuerParams) { p.Email = "nobody" }},
		{"missing country", func(p *IssuerParams) { p.Country = "" }},
		{"blank country", func(p *IssuerParams) { p.Country = "  " }},
		{"bad country", func(p *IssuerParams) { p.Country = "FR" }},
		{"missing province", func(p *IssuerParams) { p.Province = "" }},
		{"missing organization", func(p *IssuerParams) { p.Organization = "" }},
		{"missing email", func(p *IssuerParams) { p.Email = "" }},
		{"missing ou", func(p *IssuerParams) { p.OrganizationalUnit = "" }},
		{"bad algorithm", func(p *IssuerParams) { p.Algorithm = "dsa" }},
		{"bad curve", func(p *IssuerParams) { p.Curve = "curve25519" }},
		{"bad digest", func(p *IssuerParams) { p.Digest = "sha3" }},
		{"small key", func(p *IssuerParams) { p.KeySize = 512 }},
		{"negative expiry", func(p *IssuerParams) { p.CAExpire = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := exampleParams("example.org")
			tt.mutate(&p)
			_, err := env.manager.CreateIssuer(t.Context(), owner, p)
			require.ErrorIs(t, err, ErrValidation)
			var verr *ValidationError
			assert.True(t, errors.As(err, &verr))
		})
	}

	entries, err := os.ReadDir(env.root)
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected issuers must not touch the filesystem")
}

func TestManager_CreateIssuer_ProvisionFailureReleasesName(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	// A regular file where the issuer root should go.
	require.NoError(t, os.WriteFile(filepath.Join(env.root, "example.org"), nil, 0o644))

	_, err := env.manager.CreateIssuer(ctx, owner, exampleParams("example.org"))
	require.ErrorIs(t, err, ErrProvision)

	require.NoError(t, os.Remove(filepath.Join(env.root, "example.org")))
	_, err = env.manager.CreateIssuer(ctx, owner, exampleParams("example.org"))
	require.NoError(t, err)
}

func TestManager_DeleteIssuer_Cascades(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	m := env.manager

	iss, err := m.CreateIssuer(ctx, owner, exampleParams("example.org"))
	require.NoError(t, err)
	advanceToDH(t, m, iss.ID)
	_, err = m.GenerateServer(ctx, owner, iss.ID, "vpn")
	require.NoError(t, err)
	_, err = m.GenerateClient(ctx, owner, iss.ID, "alice", "phone")
	require.NoError(t, err)

	other, err := m.CreateIssuer(ctx, owner, exampleParams("other.org"))
	require.NoError(t, err)
	advanceToDH(t, m, other.ID)

	removed, err := m.DeleteIssuer(ctx, owner, iss.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	_, err = m.GetIssuer(ctx, owner, iss.ID)
	assert.ErrorIs(t, err, ErrIssuerNotFound)
	assert.False(t, env.provisioner.Exists("example.org"))
	for _, cn := range []string{"example.org", "vpn.example.org", "alice.example.org"} {
		taken, err := env.store.CertificateNameTaken(cn)
		require.NoError(t, err)
		assert.False(t, taken, cn)
	}

	certs, err := m.ListCertificates(ctx, owner, other.ID)
	require.NoError(t, err)
	assert.Len(t, certs, 1, "other issuers keep their certificates")

	// The common name is free again.
	_, err = m.CreateIssuer(ctx, owner, exampleParams("example.org"))
	require.NoError(t, err)
}

func TestManager_CommandFailureBlocksStep(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	env.runner.fail["init-pki"] = true

	iss, err := env.manager.CreateIssuer(ctx, owner, exampleParams("example.org"))
	require.NoError(t, err)

	_, err = env.manager.InitPKI(ctx, owner, iss.ID)
	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, StepInitPKI, cmdErr.Step)
	assert.Equal(t, 1, cmdErr.Result.ExitCode)
	assert.Contains(t, err.Error(), "simulated failure")

	got, err := env.manager.GetIssuer(ctx, owner, iss.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCreatedVars, got.Status)

	log, err := env.manager.ReadLog(ctx, owner, iss.ID)
	require.NoError(t, err)
	assert.Contains(t, string(log), "easyrsa: simulated failure [")
}

func TestManager_BestEffortAdvancesOnFailure(t *testing.T) {
	env := newTestEnv(t, WithBestEffort(true))
	ctx := t.Context()
	env.runner.fail["build-ca"] = true

	iss, err := env.manager.CreateIssuer(ctx, owner, exampleParams("example.org"))
	require.NoError(t, err)
	_, err = env.manager.InitPKI(ctx, owner, iss.ID)
	require.NoError(t, err)

	out, err := env.manager.GenerateCA(ctx, owner, iss.ID)
	require.NoError(t, err)
	assert.False(t, out.Result.OK())
	assert.Equal(t, "easyrsa: simulated failure", out.Result.Output())
	assert.Equal(t, StatusGeneratedCA, out.Issuer.Status)
	require.NotNil(t, out.Certificate)
}

func TestManager_MissingRootIsProvisionError(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	iss, err := env.manager.CreateIssuer(ctx, owner, exampleParams("example.org"))
	require.NoError(t, err)
	require.NoError(t, env.provisioner.Remove("example.org"))

	_, err = env.manager.InitPKI(ctx, owner, iss.ID)
	require.ErrorIs(t, err, ErrProvision)
	assert.Empty(t, env.runner.commands())

	_, err = env.manager.ReadLog(ctx, owner, iss.ID)
	require.ErrorIs(t, err, ErrProvision)
}

func TestManager_ConcurrentStepIsBusy(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	iss, err := env.manager.CreateIssuer(ctx, owner, exampleParams("example.org"))
	require.NoError(t, err)

	env.runner.started = make(chan struct{})
	env.runner.release = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := env.manager.InitPKI(ctx, owner, iss.ID)
		done <- err
	}()
	<-env.runner.started

	_, err = env.manager.InitPKI(ctx, owner, iss.ID)
	assert.ErrorIs(t, err, ErrBusy)
	_, err = env.manager.DeleteIssuer(ctx, owner, iss.ID)
	assert.ErrorIs(t, err, ErrBusy)

	close(env.runner.release)
	require.NoError(t, <-done)
}

func TestManager_Ownership(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	m := env.manager

	iss, err := m.CreateIssuer(ctx, owner, exampleParams("example.org"))
	require.NoError(t, err)
	_, err = m.InitPKI(ctx, owner, iss.ID)
	require.NoError(t, err)
	out, err := m.GenerateCA(ctx, owner, iss.ID)
	require.NoError(t, err)

	_, err = m.GetIssuer(ctx, "intruder", iss.ID)
	assert.ErrorIs(t, err, ErrIssuerNotFound)
	_, err = m.GenerateDH(ctx, "intruder", iss.ID)
	assert.ErrorIs(t, err, ErrIssuerNotFound)
	_, err = m.DeleteIssuer(ctx, "intruder", iss.ID)
	assert.ErrorIs(t, err, ErrIssuerNotFound)
	_, err = m.GetCertificate(ctx, "intruder", out.Certificate.ID)
	assert.ErrorIs(t, err, ErrCertificateNotFound)
	assert.ErrorIs(t, m.DeleteCertificate(ctx, "intruder", out.Certificate.ID), ErrCertificateNotFound)

	list, err := m.ListIssuers(ctx, "intruder")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestManager_UpdateIssuer(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	m := env.manager

	iss, err := m.CreateIssuer(ctx, owner, exampleParams("example.org"))
	require.NoError(t, err)
	_, err = m.InitPKI(ctx, owner, iss.ID)
	require.NoError(t, err)

	p := exampleParams("")
	p.KeySize = 4096
	p.Digest = DigestSHA512
	updated, err := m.UpdateIssuer(ctx, owner, iss.ID, p)
	require.NoError(t, err)
	assert.Equal(t, 4096, updated.KeySize)
	assert.Equal(t, "example.org", updated.CommonName)
	assert.Equal(t, StatusInitializedPKI, updated.Status, "update must not touch the status")

	layout, err := env.provisioner.Layout("example.org")
	require.NoError(t, err)
	vars, err := os.ReadFile(layout.VarsFile)
	require.NoError(t, err)
	assert.Contains(t, string(vars), "set_var EASYRSA_KEY_SIZE 4096\n")
	assert.Contains(t, string(vars), `set_var EASYRSA_DIGEST "sha512"`)

	_, err = m.UpdateIssuer(ctx, owner, iss.ID, exampleParams("renamed.org"))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = m.UpdateIssuer(ctx, owner, "missing", p)
	assert.ErrorIs(t, err, ErrIssuerNotFound)
}

func TestManager_DeleteCertificate(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	m := env.manager

	iss, err := m.CreateIssuer(ctx, owner, exampleParams("example.org"))
	require.NoError(t, err)
	advanceToDH(t, m, iss.ID)
	out, err := m.GenerateClient(ctx, owner, iss.ID, "alice", "")
	require.NoError(t, err)

	got, err := m.GetCertificate(ctx, owner, out.Certificate.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice.example.org", got.CommonName)

	require.NoError(t, m.DeleteCertificate(ctx, owner, out.Certificate.ID))
	_, err = m.GetCertificate(ctx, owner, out.Certificate.ID)
	assert.ErrorIs(t, err, ErrCertificateNotFound)

	// The name can be issued again after deletion.
	_, err = m.GenerateClient(ctx, owner, iss.ID, "alice", "")
	require.NoError(t, err)
}

func TestManager_ServerNameValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	iss, err := env.manager.CreateIssuer(ctx, owner, exampleParams("example.org"))
	require.NoError(t, err)
	advanceToDH(t, env.manager, iss.ID)

	for _, name := range []string{"", "../x", "a b", "-rf", `a"b`} {
		_, err := env.manager.GenerateServer(ctx, owner, iss.ID, name)
		assert.ErrorIs(t, err, ErrValidation, "name %q", name)
	}
}

func TestManager_RecordsCertificateDetails(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	m := env.manager

	iss, err := m.CreateIssuer(ctx, owner, exampleParams("example.org"))
	require.NoError(t, err)
	for _, step := range []func() (*Outcome, error){
		func() (*Outcome, error) { return m.InitPKI(ctx, owner, iss.ID) },
		func() (*Outcome, error) { return m.GenerateCA(ctx, owner, iss.ID) },
		func() (*Outcome, error) { return m.GenerateDH(ctx, owner, iss.ID) },
	} {
		_, err := step()
		require.NoError(t, err)
	}

	// Stand in for the file build-server-full would write.
	layout, err := env.provisioner.Layout("example.org")
	require.NoError(t, err)
	tlsCert, err := util.GenerateSelfSignedCert()
	require.NoError(t, err)
	path := layout.IssuedCertPath("vpn.example.org")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: tlsCert.Certificate[0]}), 0o644))

	out, err := m.GenerateServer(ctx, owner, iss.ID, "vpn")
	require.NoError(t, err)
	require.NotNil(t, out.Certificate.Details)
	assert.Equal(t, "ECDSA P-256", out.Certificate.Details.KeyAlgorithm)

	stored, err := m.GetCertificate(ctx, owner, out.Certificate.ID)
	require.NoError(t, err)
	assert.Equal(t, out.Certificate.Details.FingerprintSHA256, stored.Details.FingerprintSHA256)
}

func TestManager_CAKeepsBuildingWhenNameRegistered(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	m := env.manager

	first, err := m.CreateIssuer(ctx, owner, exampleParams("example.org"))
	require.NoError(t, err)
	_, err = m.InitPKI(ctx, owner, first.ID)
	require.NoError(t, err)
	_, err = m.GenerateCA(ctx, owner, first.ID)
	require.NoError(t, err)
	_, err = m.GenerateDH(ctx, owner, first.ID)
	require.NoError(t, err)
	_, err = m.GenerateServer(ctx, owner, first.ID, "vpn")
	require.NoError(t, err)

	// The second issuer's name equals the server certificate above.
	second, err := m.CreateIssuer(ctx, owner, exampleParams("vpn.example.org"))
	require.NoError(t, err)
	_, err = m.InitPKI(ctx, owner, second.ID)
	require.NoError(t, err)

	out, err := m.GenerateCA(ctx, owner, second.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusGeneratedCA, out.Issuer.Status)
	assert.Nil(t, out.Certificate)
	assert.Contains(t, env.runner.commands()[len(env.runner.commands())-1], "build-ca")

	certs, err := m.ListCertificates(ctx, owner, second.ID)
	require.NoError(t, err)
	assert.Empty(t, certs)
	certs, err = m.ListCertificates(ctx, owner, first.ID)
	require.NoError(t, err)
	assert.Len(t, certs, 2, "the server record keeps its owner")

	// Server and client names stay strictly unique.
	_, err = m.GenerateServer(ctx, owner, first.ID, "vpn")
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestManager_StepOutlivesRequestContext(t *testing.T) {
	env := newTestEnv(t)
	iss, err := env.manager.CreateIssuer(t.Context(), owner, exampleParams("example.org"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	out, err := env.manager.InitPKI(ctx, owner, iss.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInitializedPKI, out.Issuer.Status)
	assert.Equal(t, []error{nil}, env.runner.contextErrors())
}
