package issuance

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jmcleod/ironrsa/config"
	"github.com/jmcleod/ironrsa/easyrsa"
	"github.com/jmcleod/ironrsa/storage/memory"
)

// fakeRunner records commands instead of executing them. Commands whose
// string form contains a key of fail exit with status 1.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []easyrsa.Command
	ctxErrs []error
	fail    map[string]bool
	started chan struct{}
	release chan struct{}
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{fail: make(map[string]bool)}
}

func (f *fakeRunner) Run(ctx context.Context, cmd easyrsa.Command) *easyrsa.Result {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	started, release := f.started, f.release
	failed := false
	for k := range f.fail {
		if strings.Contains(cmd.String(), k) {
			failed = true
		}
	}
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
		<-release
	}

	res := &easyrsa.Result{Command: cmd.String(), Started: time.Now()}
	if failed {
		res.ExitCode = 1
		res.Stderr = "easyrsa: simulated failure\n"
	} else {
		res.Stdout = "ok\n"
	}
	if cmd.LogPath != "" {
		_ = easyrsa.AppendLog(cmd.LogPath, res.Output(), res.Started)
	}
	return res
}

func (f *fakeRunner) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = strings.Join(c.Args, " ")
	}
	return out
}

type testEnv struct {
	manager     *Manager
	store       *Store
	runner      *fakeRunner
	provisioner *easyrsa.Provisioner
	root        string
}

func newTestEnv(t *testing.T, opts ...ManagerOption) *testEnv {
	t.Helper()
	templates := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(templates, "easyrsa"), []byte("#!/bin/sh\n"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(templates, "openssl-easyrsa.cnf"), []byte("\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(templates, "x509-types"), 0o755))

	conf := config.Default().EasyRSA
	conf.RootPath = t.TempDir()
	conf.TemplatePath = templates
	prov, err := easyrsa.NewProvisioner(conf)
	require.NoError(t, err)

	store := NewStore(memory.NewRepository())
	runner := newFakeRunner()
	return &testEnv{
		manager:     NewManager(store, prov, runner, opts...),
		store:       store,
		runner:      runner,
		provisioner: prov,
		root:        conf.RootPath,
	}
}

func exampleParams(cn string) IssuerParams {
	return IssuerParams{
		Country:            CountryCA,
		Province:           "Ontario",
		City:               "Toronto",
		Organization:       "Example",
		Email:              "pki@example.org",
		OrganizationalUnit: "Ops",
		CommonName:         cn,
		KeySize:            2048,
		Algorithm:          AlgorithmRSA,
	}
}

func (f *fakeRunner) contextErrors() []error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]error(nil), f.ctxErrs...)
}
