package issuance

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"github.com/jmcleod/ironrsa/easyrsa"
	"github.com/jmcleod/ironrsa/internal/uuid"
)

// Manager runs the issuance workflow for authenticated users. Each
// operation is scoped to the caller: issuers owned by someone else are
// reported as not found.
type Manager struct {
	store       *Store
	provisioner *easyrsa.Provisioner
	runner      easyrsa.Runner
	openvpn     string
	bestEffort  bool
	logger      *slog.Logger
	now         func() time.Time

	mu      sync.Mutex
	running map[string]struct{}
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the process logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithBestEffort makes failed commands advance the status anyway. The
// failure is still recorded in the issuer log and the returned Outcome.
func WithBestEffort(enabled bool) ManagerOption {
	return func(m *Manager) {
		m.bestEffort = enabled
	}
}

// WithOpenVPN sets the openvpn binary used for TA key generation.
// Default: "openvpn".
func WithOpenVPN(path string) ManagerOption {
	return func(m *Manager) {
		m.openvpn = path
	}
}

// WithClock overrides the time source for record timestamps.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a Manager.
func NewManager(store *Store, provisioner *easyrsa.Provisioner, runner easyrsa.Runner, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:       store,
		provisioner: provisioner,
		runner:      runner,
		openvpn:     "openvpn",
		logger:      slog.Default(),
		now:         time.Now,
		running:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "issuance")
	return m
}

// Outcome is the result of one issuance step.
type Outcome struct {
	Issuer      *Issuer         `json:"issuer"`
	Certificate *Certificate    `json:"certificate,omitempty"`
	Result      *easyrsa.Result `json:"result"`
}

// CreateIssuer validates params, registers the issuer under the caller and
// provisions its directory.
func (m *Manager) CreateIssuer(ctx context.Context, userID string, params IssuerParams) (*Issuer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	params.normalize()
	if err := params.Validate(); err != nil {
		return nil, err
	}

	now := m.now().UTC()
	iss := &Issuer{
		ID:           uuid.New(),
		UserID:       userID,
		IssuerParams: params,
		Status:       StatusCreatedVars,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.store.CreateIssuer(iss); err != nil {
		return nil, err
	}

	if _, err := m.provisioner.Provision(ctx, iss.VarsParams()); err != nil {
		// Release the name so the caller can retry once the filesystem is fixed.
		if _, derr := m.store.DeleteIssuer(iss.ID); derr != nil {
			m.logger.ErrorContext(ctx, "rolling back issuer failed", "issuer_id", iss.ID, "error", derr)
		}
		return nil, fmt.Errorf("%w: %w", ErrProvision, err)
	}
	m.logger.InfoContext(ctx, "issuer created", "issuer_id", iss.ID, "common_name", iss.CommonName)
	return iss, nil
}

// UpdateIssuer replaces the parameters of an issuer and rewrites its vars
// file. The common name and status cannot be changed.
func (m *Manager) UpdateIssuer(ctx context.Context, userID, id string, params IssuerParams) (*Issuer, error) {
	unlock, err := m.lock(id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	iss, err := m.ownedIssuer(userID, id)
	if err != nil {
		return nil, err
	}
	if params.CommonName == "" {
		params.CommonName = iss.CommonName
	}
	params.normalize()
	if params.CommonName != iss.CommonName {
		return nil, validationErrorf("commonName", "cannot be changed")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	iss.IssuerParams = params
	iss.UpdatedAt = m.now().UTC()
	if err := m.store.UpdateIssuer(iss); err != nil {
		return nil, err
	}
	if err := m.provisioner.WriteVars(ctx, iss.VarsParams()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProvision, err)
	}
	return iss, nil
}

// GetIssuer returns one of the caller's issuers.
func (m *Manager) GetIssuer(ctx context.Context, userID, id string) (*Issuer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.ownedIssuer(userID, id)
}

// ListIssuers returns the caller's issuers.
func (m *Manager) ListIssuers(ctx context.Context, userID string) ([]*Issuer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.store.ListIssuers(userID)
}

// DeleteIssuer removes the issuer with all its certificates, then its
// directory. It returns the number of certificate records removed.
func (m *Manager) DeleteIssuer(ctx context.Context, userID, id string) (int, error) {
	unlock, err := m.lock(id)
	if err != nil {
		return 0, err
	}
	defer unlock()

	iss, err := m.ownedIssuer(userID, id)
	if err != nil {
		return 0, err
	}
	removed, err := m.store.DeleteIssuer(id)
	if err != nil {
		return 0, err
	}
	if err := m.provisioner.Remove(iss.CommonName); err != nil {
		return removed, fmt.Errorf("%w: %w", ErrProvision, err)
	}
	m.logger.InfoContext(ctx, "issuer deleted", "issuer_id", id, "certificates", removed)
	return removed, nil
}

// InitPKI runs easyrsa init-pki.
func (m *Manager) InitPKI(ctx context.Context, userID, id string) (*Outcome, error) {
	return m.runStep(ctx, userID, id, StepInitPKI, stepArgs{})
}

// GenerateCA runs easyrsa build-ca and registers the CA certificate under
// the issuer's common name.
func (m *Manager) GenerateCA(ctx context.Context, userID, id string) (*Outcome, error) {
	return m.runStep(ctx, userID, id, StepBuildCA, stepArgs{})
}

// GenerateDH runs easyrsa gen-dh.
func (m *Manager) GenerateDH(ctx context.Context, userID, id string) (*Outcome, error) {
	return m.runStep(ctx, userID, id, StepGenDH, stepArgs{})
}

// GenerateServer issues a server certificate named "<name>.<issuer CN>".
func (m *Manager) GenerateServer(ctx context.Context, userID, id, name string) (*Outcome, error) {
	return m.runStep(ctx, userID, id, StepBuildServer, stepArgs{name: name})
}

// GenerateClient issues a client certificate named "<name>.<issuer CN>".
func (m *Manager) GenerateClient(ctx context.Context, userID, id, name, deviceID string) (*Outcome, error) {
	return m.runStep(ctx, userID, id, StepBuildClient, stepArgs{name: name, deviceID: deviceID})
}

// GenerateTA generates the OpenVPN TLS-auth key.
func (m *Manager) GenerateTA(ctx context.Context, userID, id string) (*Outcome, error) {
	return m.runStep(ctx, userID, id, StepGenTA, stepArgs{})
}

type stepArgs struct {
	name     string
	deviceID string
}

func (m *Manager) runStep(ctx context.Context, userID, id string, step Step, args stepArgs) (*Outcome, error) {
	unlock, err := m.lock(id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	iss, err := m.ownedIssuer(userID, id)
	if err != nil {
		return nil, err
	}
	to, err := step.Transition(iss.Status)
	if err != nil {
		return nil, err
	}
	if !m.provisioner.Exists(iss.CommonName) {
		return nil, fmt.Errorf("%w: root for %s is missing", ErrProvision, iss.CommonName)
	}
	layout, err := m.provisioner.Layout(iss.CommonName)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProvision, err)
	}

	cert, err := m.pendingCertificate(ctx, step, iss, args)
	if err != nil {
		return nil, err
	}

	// A disconnecting client must not kill EasyRSA halfway through writing
	// pki/; easyrsa.command_timeout is the only limit.
	res := m.runner.Run(context.WithoutCancel(ctx), m.command(step, layout, iss, cert))
	if !res.OK() {
		if !m.bestEffort {
			return nil, &CommandError{Step: step, Result: res}
		}
		m.logger.WarnContext(ctx, "step failed, continuing in best-effort mode",
			"issuer_id", id, "step", step, "exit_code", res.ExitCode)
	}

	if cert != nil && res.OK() {
		cert.Details = m.certificateDetails(ctx, layout, cert)
	}

	iss.Status = to
	iss.UpdatedAt = m.now().UTC()
	if err := m.store.AdvanceStatus(iss, cert); err != nil {
		return nil, err
	}
	m.logger.InfoContext(ctx, "step completed", "issuer_id", id, "step", step, "status", to)
	return &Outcome{Issuer: iss, Certificate: cert, Result: res}, nil
}

// pendingCertificate builds the record a step will register and checks its
// name is free before any command runs. A CA whose name is already
// registered still builds; it just gets no record of its own.
func (m *Manager) pendingCertificate(ctx context.Context, step Step, iss *Issuer, args stepArgs) (*Certificate, error) {
	category, ok := step.Category()
	if !ok {
		return nil, nil
	}
	cn := iss.CommonName
	if category != CategoryCA {
		var err error
		if cn, err = certificateName(args.name, iss); err != nil {
			return nil, err
		}
	}
	taken, err := m.store.CertificateNameTaken(cn)
	if err != nil {
		return nil, err
	}
	if taken {
		if category == CategoryCA {
			m.logger.InfoContext(ctx, "CA common name already registered, skipping record",
				"issuer_id", iss.ID, "common_name", cn)
			return nil, nil
		}
		return nil, fmt.Errorf("certificate %s: %w", cn, ErrDuplicate)
	}
	return &Certificate{
		ID:         uuid.New(),
		CommonName: cn,
		Category:   category,
		IssuerID:   iss.ID,
		DeviceID:   args.deviceID,
		CreatedAt:  m.now().UTC(),
	}, nil
}

// certificateDetails inspects the file the step produced. A missing or
// unreadable file leaves the record without details.
func (m *Manager) certificateDetails(ctx context.Context, layout easyrsa.Layout, cert *Certificate) *easyrsa.CertificateInfo {
	path := layout.IssuedCertPath(cert.CommonName)
	if cert.Category == CategoryCA {
		path = layout.CACertPath()
	}
	info, err := easyrsa.ReadCertificateInfo(path)
	if err != nil {
		m.logger.DebugContext(ctx, "certificate details unavailable", "path", path, "error", err)
		return nil
	}
	return info
}

func (m *Manager) command(step Step, layout easyrsa.Layout, iss *Issuer, cert *Certificate) easyrsa.Command {
	switch step {
	case StepInitPKI:
		return layout.InitPKI()
	case StepBuildCA:
		return layout.BuildCA(iss.CommonName)
	case StepGenDH:
		return layout.GenDH()
	case StepBuildServer:
		return layout.BuildServerFull(cert.CommonName)
	case StepBuildClient:
		return layout.BuildClientFull(cert.CommonName)
	case StepGenTA:
		return layout.GenTA(m.openvpn)
	}
	panic("issuance: no command for step " + string(step))
}

// ListCertificates returns the certificates issued under one of the
// caller's issuers.
func (m *Manager) ListCertificates(ctx context.Context, userID, issuerID string) ([]*Certificate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := m.ownedIssuer(userID, issuerID); err != nil {
		return nil, err
	}
	return m.store.ListCertificates(issuerID)
}

// GetCertificate returns a certificate whose issuer the caller owns.
func (m *Manager) GetCertificate(ctx context.Context, userID, id string) (*Certificate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.ownedCertificate(userID, id)
}

// DeleteCertificate removes a certificate record. Key material under the
// issuer's pki directory is left untouched.
func (m *Manager) DeleteCertificate(ctx context.Context, userID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := m.ownedCertificate(userID, id); err != nil {
		return err
	}
	return m.store.DeleteCertificate(id)
}

// ReadLog returns the issuer's easyrsa.log.
func (m *Manager) ReadLog(ctx context.Context, userID, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	iss, err := m.ownedIssuer(userID, id)
	if err != nil {
		return nil, err
	}
	data, err := m.provisioner.ReadLog(iss.CommonName)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: log for %s is missing", ErrProvision, iss.CommonName)
		}
		return nil, fmt.Errorf("%w: %w", ErrProvision, err)
	}
	return data, nil
}

func (m *Manager) ownedIssuer(userID, id string) (*Issuer, error) {
	if !uuid.Valid(id) {
		return nil, ErrIssuerNotFound
	}
	iss, err := m.store.GetIssuer(id)
	if err != nil {
		return nil, err
	}
	if iss.UserID != userID {
		return nil, ErrIssuerNotFound
	}
	return iss, nil
}

func (m *Manager) ownedCertificate(userID, id string) (*Certificate, error) {
	if !uuid.Valid(id) {
		return nil, ErrCertificateNotFound
	}
	cert, err := m.store.GetCertificate(id)
	if err != nil {
		return nil, err
	}
	if _, err := m.ownedIssuer(userID, cert.IssuerID); err != nil {
		return nil, ErrCertificateNotFound
	}
	return cert, nil
}

// lock marks the issuer busy. Steps share one working directory per issuer,
// so a second caller fails fast instead of queueing.
func (m *Manager) lock(id string) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.running[id]; ok {
		return nil, ErrBusy
	}
	m.running[id] = struct{}{}
	return func() {
		m.mu.Lock()
		delete(m.running, id)
		m.mu.Unlock()
	}, nil
}
