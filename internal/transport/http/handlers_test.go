// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/opentrusty/orgmanager/internal/audit"
	"github.com/opentrusty/orgmanager/internal/identity"
	"github.com/opentrusty/orgmanager/internal/store/memory"
	"github.com/opentrusty/orgmanager/internal/tenant"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type testServer struct {
	router  http.Handler
	tokens  *identity.TokenService
	store   *memory.Store
	tenants *tenant.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := memory.New()
	hasher := identity.NewPasswordHasher(bcrypt.MinCost)
	auditLogger := audit.NewSlogLogger()

	tokens, err := identity.NewTokenService(testSecret, time.Hour, "orgmanager-test")
	require.NoError(t, err)
	identitySvc, err := identity.NewService(tenant.NewAdminStore(store), hasher, tokens, auditLogger, nil)
	require.NoError(t, err)
	tenantSvc := tenant.NewService(store, nil, hasher, auditLogger, nil, tenant.MigrationOptions{})

	h := NewHandler(identitySvc, tenantSvc)
	return &testServer{
		router:  NewRouter(h, NewRateLimiter(0, 0), RouterConfig{}),
		tokens:  tokens,
		store:   store,
		tenants: tenantSvc,
	}
}

func (s *testServer) do(t *testing.T, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) createOrg(t *testing.T, name, email, password string) {
	t.Helper()
	w := s.do(t, http.MethodPost, "/org/create", "", CreateOrganizationRequest{
		OrganizationName: name,
		Email:            email,
		Password:         password,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func (s *testServer) login(t *testing.T, email, password string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/admin/login", "", LoginRequest{Email: email, Password: password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res identity.LoginResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.NotEmpty(t, res.AccessToken)
	assert.Equal(t, "bearer", res.TokenType)
	return res.AccessToken
}

func decodeMap(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

// TestPurpose: Validates the create, login, rename and lookup flow over HTTP.
// Scope: Unit Test
// Security: Rename requires a bearer token scoped to the organization
// Expected: 201 on create, 200 on rename, old name 404 afterwards and new name 200 without a password hash.
// Test Case ID: HTTP-01
func TestOrganization_Lifecycle(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/org/create", "", CreateOrganizationRequest{
		OrganizationName: "acme",
		Email:            "admin@acme.com",
		Password:         "Acme@123",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	body := decodeMap(t, w)
	assert.Equal(t, "Organization created successfully", body["message"])
	assert.Equal(t, "acme", body["organization"])

	w = s.do(t, http.MethodGet, "/org/get?organization_name=acme", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decodeMap(t, w)
	assert.Equal(t, "acme", body["organization_name"])
	assert.Equal(t, "org_acme", body["partition_name"])
	assert.NotContains(t, w.Body.String(), "password")
	assert.NotContains(t, w.Body.String(), "$2a$")

	token := s.login(t, "admin@acme.com", "Acme@123")

	w = s.do(t, http.MethodPut, "/org/update", token, UpdateOrganizationRequest{
		OldOrganizationName: "acme",
		NewOrganizationName: "acme_new",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Organization updated successfully", decodeMap(t, w)["message"])

	w = s.do(t, http.MethodGet, "/org/get?organization_name=acme", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(t, http.MethodGet, "/org/get?organization_name=acme_new", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

// TestPurpose: Validates that registering an existing name is rejected.
// Scope: Unit Test
// Expected: Second create returns 409 Conflict.
// Test Case ID: HTTP-02
func TestOrganization_Create_DuplicateName(t *testing.T) {
	s := newTestServer(t)
	s.createOrg(t, "acme", "admin@acme.com", "pw")

	w := s.do(t, http.MethodPost, "/org/create", "", CreateOrganizationRequest{
		OrganizationName: "acme",
		Email:            "other@acme.com",
		Password:         "pw",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

// TestPurpose: Validates request body validation on organization creation.
// Scope: Unit Test
// Security: Input sanitization boundary check
// Expected: Malformed JSON, bad names, bad emails and empty passwords return 400.
// Test Case ID: HTTP-03
func TestOrganization_Create_Validation(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/org/create", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	cases := []CreateOrganizationRequest{
		{OrganizationName: "", Email: "a@x.com", Password: "pw"},
		{OrganizationName: "bad name", Email: "a@x.com", Password: "pw"},
		{OrganizationName: "../etc", Email: "a@x.com", Password: "pw"},
		{OrganizationName: "acme", Email: "not-an-email", Password: "pw"},
		{OrganizationName: "acme", Email: "a@x.com", Password: ""},
	}
	for _, tc := range cases {
		w := s.do(t, http.MethodPost, "/org/create", "", tc)
		assert.Equal(t, http.StatusBadRequest, w.Code, "%+v", tc)
	}
}

// TestPurpose: Validates that login does not reveal whether an email is registered.
// Scope: Unit Test
// Security: User enumeration resistance
// Expected: Unknown email and wrong password produce identical 401 responses.
// Test Case ID: HTTP-04
func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	s := newTestServer(t)
	s.createOrg(t, "acme", "admin@acme.com", "Acme@123")

	wrongPassword := s.do(t, http.MethodPost, "/admin/login", "", LoginRequest{Email: "admin@acme.com", Password: "nope"})
	unknownEmail := s.do(t, http.MethodPost, "/admin/login", "", LoginRequest{Email: "ghost@acme.com", Password: "Acme@123"})

	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	assert.Equal(t, http.StatusUnauthorized, unknownEmail.Code)
	assert.Equal(t, wrongPassword.Body.String(), unknownEmail.Body.String())
}

// TestPurpose: Validates bearer token enforcement on protected routes.
// Scope: Unit Test
// Security: Token rejection reasons are not exposed to the caller
// Expected: Missing, malformed and payload-less tokens all return 401; the last two share one message.
// Test Case ID: HTTP-05
func TestAuthMiddleware_RejectsBadTokens(t *testing.T) {
	s := newTestServer(t)
	s.createOrg(t, "acme", "admin@acme.com", "pw")
	update := UpdateOrganizationRequest{OldOrganizationName: "acme", NewOrganizationName: "acme2"}

	w := s.do(t, http.MethodPut, "/org/update", "", update)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))

	garbage := s.do(t, http.MethodPut, "/org/update", "not.a.token", update)
	assert.Equal(t, http.StatusUnauthorized, garbage.Code)

	noEmail, _, err := s.tokens.Issue("", "acme")
	require.NoError(t, err)
	payload := s.do(t, http.MethodPut, "/org/update", noEmail, update)
	assert.Equal(t, http.StatusUnauthorized, payload.Code)

	assert.Equal(t, garbage.Body.String(), payload.Body.String())
	assert.Equal(t, "invalid or expired token", decodeMap(t, payload)["error"])

	w = s.do(t, http.MethodGet, "/org/get?organization_name=acme", "", nil)
	assert.Equal(t, http.StatusOK, w.Code, "rename must not have happened")
}

// TestPurpose: Validates that a token only authorizes its own organization.
// Scope: Unit Test
// Security: Cross-tenant isolation
// Expected: Rename and delete of another organization return 403 and change nothing.
// Test Case ID: HTTP-06
func TestOrganization_ScopeMismatch_Forbidden(t *testing.T) {
	s := newTestServer(t)
	s.createOrg(t, "acme", "admin@acme.com", "pw")
	s.createOrg(t, "globex", "admin@globex.com", "pw")
	token := s.login(t, "admin@acme.com", "pw")

	w := s.do(t, http.MethodPut, "/org/update", token, UpdateOrganizationRequest{
		OldOrganizationName: "globex",
		NewOrganizationName: "globex2",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodDelete, "/org/delete?organization_name=globex", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/org/get?organization_name=globex", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

// TestPurpose: Validates rename onto a taken name over HTTP.
// Scope: Unit Test
// Expected: 409 Conflict; the original organization keeps its documents.
// Test Case ID: HTTP-07
func TestOrganization_Update_NameConflict(t *testing.T) {
	s := newTestServer(t)
	s.createOrg(t, "acme", "admin@acme.com", "pw")
	s.createOrg(t, "globex", "admin@globex.com", "pw")
	token := s.login(t, "admin@acme.com", "pw")

	w := s.do(t, http.MethodPost, "/org/documents", token, map[string]any{"k": "v"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodPut, "/org/update", token, UpdateOrganizationRequest{
		OldOrganizationName: "acme",
		NewOrganizationName: "globex",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodGet, "/org/documents", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page ListDocumentsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Len(t, page.Documents, 1)
}

// TestPurpose: Validates organization deletion over HTTP.
// Scope: Unit Test
// Expected: 200 on delete, then 404 on lookup and 404 on a second delete.
// Test Case ID: HTTP-08
func TestOrganization_Delete(t *testing.T) {
	s := newTestServer(t)
	s.createOrg(t, "acme", "admin@acme.com", "pw")
	token := s.login(t, "admin@acme.com", "pw")

	w := s.do(t, http.MethodDelete, "/org/delete?organization_name=acme", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Organization deleted successfully", decodeMap(t, w)["message"])

	w = s.do(t, http.MethodGet, "/org/get?organization_name=acme", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodDelete, "/org/delete?organization_name=acme", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestPurpose: Validates the size limit surfaces as 413 on rename.
// Scope: Unit Test
// Expected: Rename of a partition above MaxDocuments returns 413 and leaves the organization in place.
// Test Case ID: HTTP-09
func TestOrganization_Update_ResourceExhausted(t *testing.T) {
	s := newTestServer(t)
	hasher := identity.NewPasswordHasher(bcrypt.MinCost)
	limited := tenant.NewService(s.store, nil, hasher, audit.NewSlogLogger(), nil, tenant.MigrationOptions{MaxDocuments: 1})
	identitySvc, err := identity.NewService(tenant.NewAdminStore(s.store), hasher, s.tokens, audit.NewSlogLogger(), nil)
	require.NoError(t, err)
	s.router = NewRouter(NewHandler(identitySvc, limited), NewRateLimiter(0, 0), RouterConfig{})

	s.createOrg(t, "acme", "admin@acme.com", "pw")
	token := s.login(t, "admin@acme.com", "pw")
	for i := 0; i < 2; i++ {
		w := s.do(t, http.MethodPost, "/org/documents", token, map[string]int{"n": i})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := s.do(t, http.MethodPut, "/org/update", token, UpdateOrganizationRequest{
		OldOrganizationName: "acme",
		NewOrganizationName: "acme2",
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = s.do(t, http.MethodGet, "/org/get?organization_name=acme", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDocuments_RejectsNonObject(t *testing.T) {
	s := newTestServer(t)
	s.createOrg(t, "acme", "admin@acme.com", "pw")
	token := s.login(t, "admin@acme.com", "pw")

	w := s.do(t, http.MethodPost, "/org/documents", token, []int{1, 2})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/org/documents?limit=-1", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDocuments_Pagination(t *testing.T) {
	s := newTestServer(t)
	s.createOrg(t, "acme", "admin@acme.com", "pw")
	token := s.login(t, "admin@acme.com", "pw")
	for i := 0; i < 3; i++ {
		w := s.do(t, http.MethodPost, "/org/documents", token, map[string]int{"n": i})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	var seen []string
	after := ""
	for range 4 {
		w := s.do(t, http.MethodGet, "/org/documents?limit=2&after="+after, token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var page ListDocumentsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
		if len(page.Documents) == 0 {
			break
		}
		for _, d := range page.Documents {
			seen = append(seen, d.ID)
		}
		after = page.NextAfter
	}
	assert.Len(t, seen, 3)
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decodeMap(t, w)["status"])
}
