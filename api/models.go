package api

import "github.com/jmcleod/ironrsa/issuance"

// Envelope opens every successful response.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ErrorResponse is returned for all error cases.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

// CommandErrorResponse is returned when an EasyRSA or OpenVPN command fails.
type CommandErrorResponse struct {
	ErrorResponse
	Step     string `json:"step"`
	ExitCode int    `json:"exitCode"`
	Output   string `json:"output"`
}

// IssuerRequest is the JSON body for POST /issuers and PUT /issuers/{issuerID}.
type IssuerRequest = issuance.IssuerParams

// IssuerResponse wraps a single issuer.
type IssuerResponse struct {
	Envelope
	Issuer *issuance.Issuer `json:"issuer"`
}

// ListIssuersResponse is returned from GET /issuers.
type ListIssuersResponse struct {
	Envelope
	Issuers []*issuance.Issuer `json:"issuers"`
	PaginationMeta
}

// DeleteIssuerResponse is returned from DELETE /issuers/{issuerID}.
type DeleteIssuerResponse struct {
	Envelope
	CertificatesRemoved int `json:"certificatesRemoved"`
}

// ServerRequest is the JSON body for POST /issuers/{issuerID}/servers.
type ServerRequest struct {
	Name string `json:"name"`
}

// ClientRequest is the JSON body for POST /issuers/{issuerID}/clients.
type ClientRequest struct {
	Name     string `json:"name"`
	DeviceID string `json:"deviceId,omitempty"`
}

// StepResponse is returned by every issuance step.
type StepResponse struct {
	Envelope
	Issuer      *issuance.Issuer      `json:"issuer"`
	Certificate *issuance.Certificate `json:"certificate,omitempty"`
	ExitCode    int                   `json:"exitCode"`
	Output      string                `json:"output"`
}

// CertificateResponse wraps a single certificate.
type CertificateResponse struct {
	Envelope
	Certificate *issuance.Certificate `json:"certificate"`
}

// ListCertificatesResponse is returned from GET /issuers/{issuerID}/certificates.
type ListCertificatesResponse struct {
	Envelope
	Certificates []*issuance.Certificate `json:"certificates"`
	PaginationMeta
}

// HealthResponse is returned from GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}
