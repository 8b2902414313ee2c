package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jmcleod/ironrsa/issuance"
)

const maxRequestBody = 64 << 10

// decodeJSON reads a size-limited JSON body into v. An empty body leaves v
// untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// CreateIssuer handles POST /issuers.
func (a *API) CreateIssuer(w http.ResponseWriter, r *http.Request) {
	var req IssuerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	iss, err := a.manager.CreateIssuer(r.Context(), userIDFromContext(r.Context()), req)
	if err != nil {
		mapError(w, err)
		return
	}
	a.audit.logIssuer(AuditIssuerCreated, r, iss.ID, slog.String("common_name", iss.CommonName))
	writeJSON(w, http.StatusCreated, IssuerResponse{
		Envelope: success("Vars file is successfully created and saved"),
		Issuer:   iss,
	})
}

// ListIssuers handles GET /issuers.
func (a *API) ListIssuers(w http.ResponseWriter, r *http.Request) {
	issuers, err := a.manager.ListIssuers(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		mapError(w, err)
		return
	}
	page, meta := paginate(r, issuers)
	writeJSON(w, http.StatusOK, ListIssuersResponse{
		Envelope:       success("All issuers from vars settings are successfully retrieved."),
		Issuers:        page,
		PaginationMeta: meta,
	})
}

// GetIssuer handles GET /issuers/{issuerID}.
func (a *API) GetIssuer(w http.ResponseWriter, r *http.Request) {
	iss, err := a.manager.GetIssuer(r.Context(), userIDFromContext(r.Context()), chi.URLParam(r, "issuerID"))
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, IssuerResponse{
		Envelope: success("A vars file is successfully retrieved."),
		Issuer:   iss,
	})
}

// UpdateIssuer handles PUT /issuers/{issuerID}.
func (a *API) UpdateIssuer(w http.ResponseWriter, r *http.Request) {
	var req IssuerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	issuerID := chi.URLParam(r, "issuerID")
	iss, err := a.manager.UpdateIssuer(r.Context(), userIDFromContext(r.Context()), issuerID, req)
	if err != nil {
		mapError(w, err)
		return
	}
	a.audit.logIssuer(AuditIssuerUpdated, r, issuerID)
	writeJSON(w, http.StatusOK, IssuerResponse{
		Envelope: success("Vars file is successfully updated"),
		Issuer:   iss,
	})
}

// DeleteIssuer handles DELETE /issuers/{issuerID}.
func (a *API) DeleteIssuer(w http.ResponseWriter, r *http.Request) {
	issuerID := chi.URLParam(r, "issuerID")
	removed, err := a.manager.DeleteIssuer(r.Context(), userIDFromContext(r.Context()), issuerID)
	if err != nil {
		mapError(w, err)
		return
	}
	a.audit.logIssuer(AuditIssuerDeleted, r, issuerID, slog.Int("certificates_removed", removed))
	writeJSON(w, http.StatusOK, DeleteIssuerResponse{
		Envelope:            success("Vars file is successfully deleted."),
		CertificatesRemoved: removed,
	})
}

type stepFunc func(r *http.Request, userID, issuerID string) (*issuance.Outcome, error)

// runStep executes one issuance step and writes the shared step response.
func (a *API) runStep(w http.ResponseWriter, r *http.Request, step issuance.Step, msg string, fn stepFunc) {
	issuerID := chi.URLParam(r, "issuerID")
	out, err := fn(r, userIDFromContext(r.Context()), issuerID)
	if err != nil {
		var cmdErr *issuance.CommandError
		if errors.As(err, &cmdErr) {
			a.audit.logIssuer(AuditStepFailed, r, issuerID,
				slog.String("step", string(step)), slog.Int("exit_code", cmdErr.Result.ExitCode))
		}
		mapError(w, err)
		return
	}

	if !out.Result.OK() {
		// Best-effort mode: the status advanced despite the failure.
		a.audit.logIssuer(AuditStepFailed, r, issuerID,
			slog.String("step", string(step)), slog.Int("exit_code", out.Result.ExitCode), slog.Bool("best_effort", true))
	} else {
		a.audit.logIssuer(AuditStepCompleted, r, issuerID, slog.String("step", string(step)))
	}
	if out.Certificate != nil {
		a.audit.logIssuer(AuditCertIssued, r, issuerID,
			slog.String("certificate_id", out.Certificate.ID),
			slog.String("common_name", out.Certificate.CommonName),
			slog.String("category", string(out.Certificate.Category)))
	}
	writeJSON(w, http.StatusOK, StepResponse{
		Envelope:    success(msg),
		Issuer:      out.Issuer,
		Certificate: out.Certificate,
		ExitCode:    out.Result.ExitCode,
		Output:      out.Result.Output(),
	})
}

// InitPKI handles POST /issuers/{issuerID}/init-pki.
func (a *API) InitPKI(w http.ResponseWriter, r *http.Request) {
	a.runStep(w, r, issuance.StepInitPKI, "EasyRSA init-pki success!", func(r *http.Request, userID, issuerID string) (*issuance.Outcome, error) {
		return a.manager.InitPKI(r.Context(), userID, issuerID)
	})
}

// GenerateCA handles POST /issuers/{issuerID}/ca.
func (a *API) GenerateCA(w http.ResponseWriter, r *http.Request) {
	a.runStep(w, r, issuance.StepBuildCA, "Generating CA using EasyRSA is successfully complete!", func(r *http.Request, userID, issuerID string) (*issuance.Outcome, error) {
		return a.manager.GenerateCA(r.Context(), userID, issuerID)
	})
}

// GenerateDH handles POST /issuers/{issuerID}/dh.
func (a *API) GenerateDH(w http.ResponseWriter, r *http.Request) {
	a.runStep(w, r, issuance.StepGenDH, "Generating DH using EasyRSA is successfully complete!", func(r *http.Request, userID, issuerID string) (*issuance.Outcome, error) {
		return a.manager.GenerateDH(r.Context(), userID, issuerID)
	})
}

// GenerateTA handles POST /issuers/{issuerID}/ta.
func (a *API) GenerateTA(w http.ResponseWriter, r *http.Request) {
	a.runStep(w, r, issuance.StepGenTA, "Generating TA using openvpn is successfully complete!", func(r *http.Request, userID, issuerID string) (*issuance.Outcome, error) {
		return a.manager.GenerateTA(r.Context(), userID, issuerID)
	})
}

// GenerateServer handles POST /issuers/{issuerID}/servers.
func (a *API) GenerateServer(w http.ResponseWriter, r *http.Request) {
	var req ServerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	a.runStep(w, r, issuance.StepBuildServer, "Generating server certificate using EasyRSA is successfully complete!", func(r *http.Request, userID, issuerID string) (*issuance.Outcome, error) {
		return a.manager.GenerateServer(r.Context(), userID, issuerID, req.Name)
	})
}

// GenerateClient handles POST /issuers/{issuerID}/clients.
func (a *API) GenerateClient(w http.ResponseWriter, r *http.Request) {
	var req ClientRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	a.runStep(w, r, issuance.StepBuildClient, "Generating client certificate using EasyRSA is successfully complete!", func(r *http.Request, userID, issuerID string) (*issuance.Outcome, error) {
		return a.manager.GenerateClient(r.Context(), userID, issuerID, req.Name, req.DeviceID)
	})
}

// ListCertificates handles GET /issuers/{issuerID}/certificates.
func (a *API) ListCertificates(w http.ResponseWriter, r *http.Request) {
	certs, err := a.manager.ListCertificates(r.Context(), userIDFromContext(r.Context()), chi.URLParam(r, "issuerID"))
	if err != nil {
		mapError(w, err)
		return
	}
	page, meta := paginate(r, certs)
	writeJSON(w, http.StatusOK, ListCertificatesResponse{
		Envelope:       success("Certificates are successfully retrieved."),
		Certificates:   page,
		PaginationMeta: meta,
	})
}

// GetIssuerLog handles GET /issuers/{issuerID}/log and returns easyrsa.log
// as plain text.
func (a *API) GetIssuerLog(w http.ResponseWriter, r *http.Request) {
	issuerID := chi.URLParam(r, "issuerID")
	data, err := a.manager.ReadLog(r.Context(), userIDFromContext(r.Context()), issuerID)
	if err != nil {
		mapError(w, err)
		return
	}
	a.audit.logIssuer(AuditIssuerLogAccessed, r, issuerID)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// GetCertificate handles GET /certificates/{certificateID}.
func (a *API) GetCertificate(w http.ResponseWriter, r *http.Request) {
	cert, err := a.manager.GetCertificate(r.Context(), userIDFromContext(r.Context()), chi.URLParam(r, "certificateID"))
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CertificateResponse{
		Envelope:    success("Certificate is successfully retrieved."),
		Certificate: cert,
	})
}

// DeleteCertificate handles DELETE /certificates/{certificateID}.
func (a *API) DeleteCertificate(w http.ResponseWriter, r *http.Request) {
	certID := chi.URLParam(r, "certificateID")
	if err := a.manager.DeleteCertificate(r.Context(), userIDFromContext(r.Context()), certID); err != nil {
		mapError(w, err)
		return
	}
	a.audit.log(AuditCertDeleted, r, slog.String("certificate_id", certID))
	writeJSON(w, http.StatusOK, success("Certificate is successfully deleted."))
}
