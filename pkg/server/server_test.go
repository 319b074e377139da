package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/de-tools/waste-atlas/pkg/auth"
	"github.com/de-tools/waste-atlas/pkg/models/api"
	"github.com/de-tools/waste-atlas/pkg/models/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) ListClients(ctx context.Context) ([]domain.Client, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Client), args.Error(1)
}

func (m *mockDirectory) GetClient(ctx context.Context, clientID string) (domain.Client, error) {
	args := m.Called(ctx, clientID)
	return args.Get(0).(domain.Client), args.Error(1)
}

type mockFindings struct {
	mock.Mock
}

func (m *mockFindings) ListActiveFindings(
	ctx context.Context,
	clientID string,
	filter domain.FindingFilter,
) ([]domain.Finding, error) {
	args := m.Called(ctx, clientID, filter)
	return args.Get(0).([]domain.Finding), args.Error(1)
}

func (m *mockFindings) ResolveFinding(ctx context.Context, clientID, findingID, actor string) (domain.Finding, error) {
	args := m.Called(ctx, clientID, findingID, actor)
	return args.Get(0).(domain.Finding), args.Error(1)
}

type mockAuditor struct {
	mock.Mock
}

func (m *mockAuditor) RunAudit(ctx context.Context, clientID string, account domain.Account) (domain.AuditResult, error) {
	args := m.Called(ctx, clientID, account)
	return args.Get(0).(domain.AuditResult), args.Error(1)
}

func (m *mockAuditor) SweepInventory(
	ctx context.Context,
	clientID string,
	account domain.Account,
) (domain.SweepResult, error) {
	args := m.Called(ctx, clientID, account)
	return args.Get(0).(domain.SweepResult), args.Error(1)
}

type mockInventory struct {
	mock.Mock
}

func (m *mockInventory) ListActive(
	ctx context.Context,
	clientID string,
	filter domain.ResourceFilter,
) ([]domain.Resource, error) {
	args := m.Called(ctx, clientID, filter)
	return args.Get(0).([]domain.Resource), args.Error(1)
}

func TestWebAPI_Endpoints(t *testing.T) {
	logger := zerolog.New(zerolog.NewTestWriter(t))

	verifier, err := auth.NewTokenVerifier(auth.Settings{Secret: "0123456789abcdef", Issuer: "waste-atlas"})
	require.NoError(t, err)
	token := func(p auth.Principal) string {
		signed, err := verifier.Issue(p)
		require.NoError(t, err)
		return signed
	}
	admin := token(auth.Principal{Subject: "root", Role: auth.RoleAdmin})
	viewer := token(auth.Principal{Subject: "vic", Role: auth.RoleViewer, ClientID: "acme"})
	analyst := token(auth.Principal{Subject: "ana", Role: auth.RoleAnalyst, ClientID: "acme"})

	registry := prometheus.NewRegistry()
	audits := prometheus.NewCounter(prometheus.CounterOpts{Name: "waste_atlas_test_total", Help: "test"})
	registry.MustRegister(audits)
	audits.Inc()

	directory := new(mockDirectory)
	findings := new(mockFindings)
	auditor := new(mockAuditor)
	inventory := new(mockInventory)

	directory.On("ListClients", mock.Anything).Return([]domain.Client{
		{ID: "acme", Name: "Acme", Account: domain.Account{ID: "1"}},
		{ID: "globex", Name: "Globex", Account: domain.Account{ID: "2"}},
	}, nil)
	findings.On("ListActiveFindings", mock.Anything, "acme", domain.FindingFilter{}).
		Return([]domain.Finding{{ID: "f-1", ClientID: "acme", FindingType: "STOPPED_INSTANCE"}}, nil)
	findings.On("ResolveFinding", mock.Anything, "acme", "f-1", "ana").
		Return(domain.Finding{ID: "f-1", ClientID: "acme", Resolved: true, ResolvedBy: "ana"}, nil)

	config := Config{
		Addr: ":8080",
		Dependencies: Dependencies{
			Clients:   directory,
			Findings:  findings,
			Auditor:   auditor,
			Inventory: inventory,
			Verifier:  verifier,
			Gatherer:  registry,
			Logger:    logger,
		},
	}
	router := ConfigureRouter(config)
	testServer := httptest.NewServer(router)
	defer testServer.Close()

	tests := []struct {
		name           string
		method         string
		path           string
		token          string
		expectedStatus int
		check          func(t *testing.T, body []byte)
	}{
		{
			name:           "Healthz",
			method:         http.MethodGet,
			path:           "/healthz",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Metrics",
			method:         http.MethodGet,
			path:           "/metrics",
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, body []byte) {
				assert.Contains(t, string(body), "waste_atlas_test_total 1")
			},
		},
		{
			name:           "Unauthenticated",
			method:         http.MethodGet,
			path:           "/api/v1/clients",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "ListClients_Admin",
			method:         http.MethodGet,
			path:           "/api/v1/clients",
			token:          admin,
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, body []byte) {
				var clients []api.Client
				require.NoError(t, json.Unmarshal(body, &clients))
				assert.Len(t, clients, 2)
			},
		},
		{
			name:           "ListClients_Viewer",
			method:         http.MethodGet,
			path:           "/api/v1/clients",
			token:          viewer,
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, body []byte) {
				var clients []api.Client
				require.NoError(t, json.Unmarshal(body, &clients))
				require.Len(t, clients, 1)
				assert.Equal(t, "acme", clients[0].ID)
			},
		},
		{
			name:           "ListFindings_Viewer",
			method:         http.MethodGet,
			path:           "/api/v1/clients/acme/findings",
			token:          viewer,
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, body []byte) {
				var findings []api.Finding
				require.NoError(t, json.Unmarshal(body, &findings))
				require.Len(t, findings, 1)
				assert.Equal(t, "f-1", findings[0].ID)
			},
		},
		{
			name:           "ListFindings_ForeignClient",
			method:         http.MethodGet,
			path:           "/api/v1/clients/globex/findings",
			token:          viewer,
			expectedStatus: http.StatusForbidden,
		},
		{
			name:           "RunAudit_ViewerForbidden",
			method:         http.MethodPost,
			path:           "/api/v1/clients/acme/audits",
			token:          viewer,
			expectedStatus: http.StatusForbidden,
		},
		{
			name:           "Resolve_Analyst",
			method:         http.MethodPost,
			path:           "/api/v1/clients/acme/findings/f-1/resolve",
			token:          analyst,
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, body []byte) {
				var finding api.Finding
				require.NoError(t, json.Unmarshal(body, &finding))
				assert.Equal(t, "ana", finding.ResolvedBy)
			},
		},
		{
			name:           "Resolve_ViewerForbidden",
			method:         http.MethodPost,
			path:           "/api/v1/clients/acme/findings/f-1/resolve",
			token:          viewer,
			expectedStatus: http.StatusForbidden,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, testServer.URL+tc.path, nil)
			require.NoError(t, err)
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err, "Failed to send request")
			defer resp.Body.Close()

			assert.Equal(t, tc.expectedStatus, resp.StatusCode, "Status code mismatch")

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err, "Failed to read response body")

			if tc.check != nil {
				tc.check(t, body)
			}
		})
	}

	auditor.AssertNotCalled(t, "RunAudit", mock.Anything, mock.Anything, mock.Anything)
}
