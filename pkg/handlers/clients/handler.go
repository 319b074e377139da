package clients

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/de-tools/waste-atlas/pkg/adapters"
	"github.com/de-tools/waste-atlas/pkg/auth"
	"github.com/de-tools/waste-atlas/pkg/models/api"
	"github.com/de-tools/waste-atlas/pkg/models/domain"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type Directory interface {
	ListClients(ctx context.Context) ([]domain.Client, error)
	GetClient(ctx context.Context, clientID string) (domain.Client, error)
}

type Findings interface {
	ListActiveFindings(ctx context.Context, clientID string, filter domain.FindingFilter) ([]domain.Finding, error)
	ResolveFinding(ctx context.Context, clientID, findingID, actor string) (domain.Finding, error)
}

type Auditor interface {
	RunAudit(ctx context.Context, clientID string, account domain.Account) (domain.AuditResult, error)
	SweepInventory(ctx context.Context, clientID string, account domain.Account) (domain.SweepResult, error)
}

type Inventory interface {
	ListActive(ctx context.Context, clientID string, filter domain.ResourceFilter) ([]domain.Resource, error)
}

type Handler struct {
	directory Directory
	findings  Findings
	auditor   Auditor
	inventory Inventory
}

func NewHandler(directory Directory, findings Findings, auditor Auditor, inventory Inventory) *Handler {
	return &Handler{
		directory: directory,
		findings:  findings,
		auditor:   auditor,
		inventory: inventory,
	}
}

// ListClients returns the clients visible to the caller. Principals bound to
// a client only see their own.
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	clients, err := h.directory.ListClients(ctx)
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	principal, authenticated := auth.PrincipalFrom(ctx)
	response := make([]api.Client, 0, len(clients))
	for _, c := range clients {
		if authenticated && !principal.CanAccessClient(c.ID) {
			continue
		}
		response = append(response, adapters.MapClientDomainToApi(c))
	}

	writeJSON(w, r, http.StatusOK, response)
}

func (h *Handler) ListFindings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID := chi.URLParam(r, "client")

	filter, err := findingFilter(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	findings, err := h.findings.ListActiveFindings(ctx, clientID, filter)
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	response := make([]api.Finding, 0, len(findings))
	for _, f := range findings {
		response = append(response, adapters.MapFindingDomainToApi(f))
	}
	writeJSON(w, r, http.StatusOK, response)
}

// ResolveFinding closes a finding on behalf of the caller. The authenticated
// subject is recorded as the actor; the request body is only consulted when
// no principal is present.
func (h *Handler) ResolveFinding(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID := chi.URLParam(r, "client")
	findingID := chi.URLParam(r, "id")

	actor := ""
	if principal, ok := auth.PrincipalFrom(ctx); ok {
		actor = principal.Subject
	} else {
		var body api.ResolveRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, r, http.StatusBadRequest, "invalid request body")
			return
		}
		actor = strings.TrimSpace(body.Actor)
	}
	if actor == "" {
		writeError(w, r, http.StatusBadRequest, "actor is required")
		return
	}

	finding, err := h.findings.ResolveFinding(ctx, clientID, findingID, actor)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, adapters.MapFindingDomainToApi(finding))
}

// RunAudit audits the client's registered account. A run that could not
// reach the account answers 502 with the result body attached.
func (h *Handler) RunAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	client, err := h.directory.GetClient(ctx, chi.URLParam(r, "client"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	result, err := h.auditor.RunAudit(ctx, client.ID, client.Account)
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	status := http.StatusOK
	if result.Status == domain.AuditStatusError {
		status = http.StatusBadGateway
	}
	writeJSON(w, r, status, adapters.MapAuditResultDomainToApi(result))
}

func (h *Handler) SweepInventory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	client, err := h.directory.GetClient(ctx, chi.URLParam(r, "client"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	result, err := h.auditor.SweepInventory(ctx, client.ID, client.Account)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, adapters.MapSweepResultDomainToApi(result))
}

func (h *Handler) ListResources(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID := chi.URLParam(r, "client")
	query := r.URL.Query()

	filter := domain.ResourceFilter{AccountID: query.Get("account_id")}
	for _, raw := range listParam(query["resource_type"]) {
		rt, err := domain.ParseResourceType(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		filter.ResourceTypes = append(filter.ResourceTypes, rt)
	}

	resources, err := h.inventory.ListActive(ctx, clientID, filter)
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	response := make([]api.Resource, 0, len(resources))
	for _, res := range resources {
		response = append(response, adapters.MapResourceDomainToApi(res))
	}
	writeJSON(w, r, http.StatusOK, response)
}

func findingFilter(r *http.Request) (domain.FindingFilter, error) {
	query := r.URL.Query()
	filter := domain.FindingFilter{
		AccountID:    query.Get("account_id"),
		ResourceID:   query.Get("resource_id"),
		FindingTypes: listParam(query["finding_type"]),
	}

	for _, raw := range listParam(query["resource_type"]) {
		rt, err := domain.ParseResourceType(raw)
		if err != nil {
			return domain.FindingFilter{}, err
		}
		filter.ResourceTypes = append(filter.ResourceTypes, rt)
	}

	if raw := query.Get("severity"); raw != "" {
		severity, err := domain.ParseSeverity(raw)
		if err != nil {
			return domain.FindingFilter{}, err
		}
		filter.Severity = &severity
	}
	return filter, nil
}

// listParam accepts both repeated parameters and comma separated values.
func listParam(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrCredentials), errors.Is(err, domain.ErrProvider):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		msg = http.StatusText(status)
	}
	writeError(w, r, status, msg)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, api.Error{Error: msg})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zerolog.Ctx(r.Context()).Error().
			Err(err).
			Str("path", r.URL.Path).
			Msg("failed to encode response")
	}
}
