package easyrsa

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/jmcleod/ironrsa/config"
	"github.com/jmcleod/ironrsa/internal/util"
)

const (
	logFileName        = "easyrsa.log"
	varsFileName       = "vars"
	passphraseFileName = "ca.passphrase"
	pkiDirName         = "pki"
)

// ErrInvalidCommonName is returned when a common name cannot be used as a
// single directory name.
var ErrInvalidCommonName = errors.New("common name is not a valid directory name")

// Layout names the files of one issuer root. All paths are absolute.
type Layout struct {
	Root           string
	LogFile        string
	VarsFile       string
	PassphraseFile string
	PKIDir         string
	Script         string
	OpenSSLConfig  string
	X509Types      string
}

// Provisioner creates and maintains issuer directories under a base path.
type Provisioner struct {
	rootPath       string
	templatePath   string
	script         string
	opensslConfig  string
	x509Types      string
	passphraseSize int
	logger         *slog.Logger
	now            func() time.Time
}

// ProvisionerOption configures a Provisioner.
type ProvisionerOption func(*Provisioner)

// WithProvisionerLogger sets the process logger.
func WithProvisionerLogger(logger *slog.Logger) ProvisionerOption {
	return func(p *Provisioner) {
		p.logger = logger
	}
}

// NewProvisioner resolves the configured root and template paths to absolute
// paths so commands can run with the issuer root as working directory.
func NewProvisioner(conf config.EasyRSA, opts ...ProvisionerOption) (*Provisioner, error) {
	root, err := filepath.Abs(conf.RootPath)
	if err != nil {
		return nil, fmt.Errorf("resolving easyrsa root path: %w", err)
	}
	if strings.ContainsFunc(root, unicode.IsSpace) {
		return nil, fmt.Errorf("easyrsa root path %q must not contain whitespace", root)
	}
	templates, err := filepath.Abs(conf.TemplatePath)
	if err != nil {
		return nil, fmt.Errorf("resolving easyrsa template path: %w", err)
	}
	p := &Provisioner{
		rootPath:       root,
		templatePath:   templates,
		script:         conf.Script,
		opensslConfig:  conf.OpenSSLConfig,
		x509Types:      conf.X509Types,
		passphraseSize: conf.PassphraseSize,
		logger:         slog.Default(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "provisioner")
	return p, nil
}

// Layout returns the paths for the issuer named commonName.
func (p *Provisioner) Layout(commonName string) (Layout, error) {
	if commonName == "" || commonName == "." || commonName == ".." ||
		strings.ContainsAny(commonName, `/\`) || filepath.Base(commonName) != commonName {
		return Layout{}, fmt.Errorf("%q: %w", commonName, ErrInvalidCommonName)
	}
	root := filepath.Join(p.rootPath, commonName)
	return Layout{
		Root:           root,
		LogFile:        filepath.Join(root, logFileName),
		VarsFile:       filepath.Join(root, varsFileName),
		PassphraseFile: filepath.Join(root, passphraseFileName),
		PKIDir:         filepath.Join(root, pkiDirName),
		Script:         filepath.Join(root, p.script),
		OpenSSLConfig:  filepath.Join(root, p.opensslConfig),
		X509Types:      filepath.Join(root, p.x509Types),
	}, nil
}

// Exists reports whether the issuer root directory exists.
func (p *Provisioner) Exists(commonName string) bool {
	layout, err := p.Layout(commonName)
	if err != nil {
		return false
	}
	info, err := os.Stat(layout.Root)
	return err == nil && info.IsDir()
}

// Provision makes sure the issuer root, log file, passphrase file and
// template copies exist, and (re)writes the vars file. Every step except the
// vars file is skipped when its target already exists, so Provision is safe
// to call repeatedly.
func (p *Provisioner) Provision(ctx context.Context, params Params) (Layout, error) {
	layout, err := p.Layout(params.CommonName)
	if err != nil {
		return Layout{}, err
	}

	created, err := ensureDir(layout.Root)
	if err != nil {
		return Layout{}, fmt.Errorf("creating issuer root: %w", err)
	}
	if !created {
		p.logger.InfoContext(ctx, "issuer root exists already", "path", layout.Root)
	}

	created, err = ensureFile(layout.LogFile, nil, 0o640)
	if err != nil {
		return Layout{}, fmt.Errorf("creating issuer log: %w", err)
	}
	if !created {
		p.note(ctx, layout, "Log file "+layout.LogFile+" exists already")
	}

	passphrase, err := randomPassphrase(p.passphraseSize)
	if err != nil {
		return Layout{}, err
	}
	created, err = ensureFile(layout.PassphraseFile, passphrase, 0o600)
	if err != nil {
		return Layout{}, fmt.Errorf("creating CA passphrase file: %w", err)
	}
	if !created {
		p.note(ctx, layout, "CA passphrase file exists already")
	}

	if err := p.writeVars(ctx, layout, params); err != nil {
		return Layout{}, err
	}
	if err := p.copyTemplates(ctx, layout); err != nil {
		return Layout{}, err
	}
	return layout, nil
}

// WriteVars rewrites the vars file of an already provisioned issuer.
func (p *Provisioner) WriteVars(ctx context.Context, params Params) error {
	layout, err := p.Layout(params.CommonName)
	if err != nil {
		return err
	}
	if !p.Exists(params.CommonName) {
		return fmt.Errorf("issuer root %s: %w", layout.Root, fs.ErrNotExist)
	}
	return p.writeVars(ctx, layout, params)
}

func (p *Provisioner) writeVars(ctx context.Context, layout Layout, params Params) error {
	if _, err := os.Stat(layout.VarsFile); err == nil {
		if err := os.Remove(layout.VarsFile); err != nil {
			return fmt.Errorf("removing old vars file: %w", err)
		}
		p.note(ctx, layout, "Deleted existing vars file "+layout.VarsFile)
	}
	data := RenderVars(params, layout, p.passphraseSize)
	if err := os.WriteFile(layout.VarsFile, data, 0o640); err != nil {
		return fmt.Errorf("writing vars file: %w", err)
	}
	p.note(ctx, layout, "Wrote vars file "+layout.VarsFile)
	return nil
}

func (p *Provisioner) copyTemplates(ctx context.Context, layout Layout) error {
	script := filepath.Join(p.templatePath, p.script)
	if err := p.copyIfMissing(ctx, layout, script, layout.Script, copyFile); err != nil {
		return err
	}
	cnf := filepath.Join(p.templatePath, p.opensslConfig)
	if err := p.copyIfMissing(ctx, layout, cnf, layout.OpenSSLConfig, copyFile); err != nil {
		return err
	}
	types := filepath.Join(p.templatePath, p.x509Types)
	return p.copyIfMissing(ctx, layout, types, layout.X509Types, func(src, dst string) error {
		return os.CopyFS(dst, os.DirFS(src))
	})
}

func (p *Provisioner) copyIfMissing(ctx context.Context, layout Layout, src, dst string, copyFn func(src, dst string) error) error {
	if _, err := os.Lstat(dst); err == nil {
		p.note(ctx, layout, filepath.Base(dst)+" exists already")
		return nil
	}
	if err := copyFn(src, dst); err != nil {
		return fmt.Errorf("copying %s: %w", filepath.Base(src), err)
	}
	p.note(ctx, layout, "Copied "+src+" to "+dst)
	return nil
}

// note records a provisioning event in both the process log and the issuer log.
func (p *Provisioner) note(ctx context.Context, layout Layout, msg string) {
	p.logger.DebugContext(ctx, msg, "issuer_root", layout.Root)
	if err := AppendLog(layout.LogFile, msg, p.now()); err != nil {
		p.logger.WarnContext(ctx, "appending issuer log failed", "path", layout.LogFile, "error", err)
	}
}

// Remove deletes the issuer root and everything under it.
func (p *Provisioner) Remove(commonName string) error {
	layout, err := p.Layout(commonName)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(layout.Root); err != nil {
		return fmt.Errorf("removing issuer root: %w", err)
	}
	return nil
}

// ReadLog returns the contents of the issuer's easyrsa.log.
func (p *Provisioner) ReadLog(commonName string) ([]byte, error) {
	layout, err := p.Layout(commonName)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(layout.LogFile)
}

func ensureDir(path string) (bool, error) {
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return false, fmt.Errorf("%s exists and is not a directory", path)
		}
		return false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	return true, os.MkdirAll(path, 0o750)
}

func ensureFile(path string, content []byte, perm os.FileMode) (bool, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, err
	}
	_, err = f.Write(content)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return true, err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func randomPassphrase(size int) ([]byte, error) {
	s, err := util.RandomHex(size)
	if err != nil {
		return nil, fmt.Errorf("generating CA passphrase: %w", err)
	}
	return []byte(s), nil
}
