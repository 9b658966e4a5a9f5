package httptransport

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"landregistry/internal/anchor"
	"landregistry/internal/auth"
	authmodels "landregistry/internal/auth/models"
	authservice "landregistry/internal/auth/service"
	"landregistry/internal/auth/store/revocation"
	"landregistry/internal/document"
	documentstore "landregistry/internal/document/store"
	"landregistry/internal/identity"
	identitymodels "landregistry/internal/identity/models"
	identitystore "landregistry/internal/identity/store"
	jwttoken "landregistry/internal/jwt_token"
	"landregistry/internal/ledger"
	ledgerservice "landregistry/internal/ledger/service"
	ledgerstore "landregistry/internal/ledger/store"
	"landregistry/internal/parcel"
	parcelstore "landregistry/internal/parcel/store"
	"landregistry/internal/platform/metrics"
	"landregistry/pkg/platform/audit/publisher"
	auditmemory "landregistry/pkg/platform/audit/store/memory"
	"landregistry/pkg/testutil"
)

const testPassword = "Harbour-Lights-42"

type RouterSuite struct {
	suite.Suite
	router   http.Handler
	identity *identity.Service
	audits   *auditmemory.InMemoryStore
	registry *prometheus.Registry
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.registry = prometheus.NewRegistry()
	m := metrics.New(s.registry)
	s.audits = auditmemory.NewInMemoryStore()
	audits := publisher.NewPublisher(s.audits)

	users := identitystore.New()
	s.identity = identity.NewService(users, identity.WithAuditPublisher(audits))

	jwt := jwttoken.NewJWTService("router-test-key", "landregistry", "landregistry-api")
	trl := revocation.NewInMemoryTRL()
	authSvc := auth.NewService(s.identity, jwt, trl, authservice.Config{
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: time.Hour,
	})

	ledgerAnchor := anchor.NewLedgerAnchorer()
	parcels := parcelstore.New()
	parcelSvc := parcel.NewService(parcels, s.identity, ledgerAnchor, parcel.WithMetrics(m))
	transactions := ledgerstore.New(parcels)
	ledgerSvc := ledger.NewService(transactions, ledgerservice.NewLockedApprovalTx(transactions), s.identity, ledgerAnchor,
		ledger.WithAuditPublisher(audits))
	documentSvc := document.NewService(documentstore.New(), parcels, anchor.NewContentAddresser(), ledgerAnchor)

	s.router = NewRouter(Config{
		Logger:      logger,
		Metrics:     m,
		Gatherer:    s.registry,
		Tokens:      jwttoken.NewJWTServiceAdapter(jwt),
		Revocations: trl,
		HealthChecks: map[string]HealthCheck{
			"store": func(context.Context) error { return nil },
		},
	},
		identity.NewHandler(s.identity, logger),
		auth.NewHandler(authSvc, logger),
		parcel.NewHandler(parcelSvc, logger),
		ledger.NewHandler(ledgerSvc, logger),
		document.NewHandler(documentSvc, logger),
	)
}

func (s *RouterSuite) do(method, path, token string, body any) *httptest.ResponseRecorder {
	req := testutil.NewBearerJSONRequest(s.T(), method, path, token, body)
	return testutil.DoRequest(s.router, req)
}

func (s *RouterSuite) login(username string) *authmodels.TokenPair {
	rr := s.do(http.MethodPost, "/api/token", "", map[string]string{"username": username, "password": testPassword})
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	return testutil.UnmarshalResponse[authmodels.TokenPair](s.T(), rr)
}

func (s *RouterSuite) register(token, username, nationalID, userType string) map[string]any {
	rr := s.do(http.MethodPost, "/api/users", token, map[string]string{
		"username": username, "password": testPassword, "national_id": nationalID, "user_type": userType,
	})
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
	return *testutil.UnmarshalResponse[map[string]any](s.T(), rr)
}

func (s *RouterSuite) bootstrapAdmin() string {
	_, err := s.identity.Bootstrap(context.Background(), &identitymodels.RegisterRequest{
		Username: "registrar", Password: testPassword, NationalID: "ADM-0001",
	})
	s.Require().NoError(err)
	return s.login("registrar").Access
}

func (s *RouterSuite) TestHealthAndMetrics() {
	rr := s.do(http.MethodGet, "/healthz", "", nil)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	s.JSONEq(`{"status":"ok","store":"ok"}`, rr.Body.String())
	s.NotEmpty(rr.Header().Get("X-Request-ID"))

	rr = s.do(http.MethodGet, "/metrics", "", nil)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	s.Contains(rr.Body.String(), "landregistry_http_request_duration_seconds")
}

func (s *RouterSuite) TestUnknownRoute() {
	rr := s.do(http.MethodGet, "/api/nowhere", "", nil)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
}

func (s *RouterSuite) TestAnonymousListIsUnauthorized() {
	for _, path := range []string{"/api/users", "/api/parcels", "/api/transactions", "/api/documents"} {
		rr := s.do(http.MethodGet, path, "", nil)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
	}
}

func (s *RouterSuite) TestAnonymousAccountActionsAreUnauthorized() {
	rr := s.do(http.MethodPost, "/api/token/logout", "", nil)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")

	rr = s.do(http.MethodPost, "/api/users/me/password", "", map[string]string{
		"current_password": testPassword, "new_password": "Harbour-Lights-43",
	})
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
}

func (s *RouterSuite) TestGarbageTokenIsUnauthorized() {
	rr := s.do(http.MethodGet, "/api/parcels", "not-a-jwt", nil)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
}

func (s *RouterSuite) TestSelfRegistrationCannotClaimOfficerRole() {
	rr := s.do(http.MethodPost, "/api/users", "", map[string]string{
		"username": "mallory", "password": testPassword, "national_id": "NID-666", "user_type": "LAND_OFFICER",
	})
	testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "forbidden")
}

// TestRegistryLifecycle walks a parcel from registration through a completed
// sale with a supporting document.
func (s *RouterSuite) TestRegistryLifecycle() {
	adminToken := s.bootstrapAdmin()
	s.register(adminToken, "officer.ade", "NID-100", "LAND_OFFICER")
	alice := s.register("", "alice", "NID-200", "")
	bob := s.register("", "bob", "NID-300", "CITIZEN")
	s.Equal("CITIZEN", alice["user_type"])
	s.Equal(false, alice["is_verified"])

	officerToken := s.login("officer.ade").Access
	aliceTokens := s.login("alice")
	bobToken := s.login("bob").Access

	rr := s.do(http.MethodPost, "/api/parcels", aliceTokens.Access, map[string]any{
		"parcel_id": "LR-2026-001", "address": "14 Orchard Row", "area": "512.75",
	})
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
	p := *testutil.UnmarshalResponse[map[string]any](s.T(), rr)
	parcelID := p["id"].(string)
	s.Equal("PENDING", p["status"])
	s.Equal(alice["id"], p["current_owner"])

	rr = s.do(http.MethodPost, "/api/parcels", bobToken, map[string]any{
		"parcel_id": "LR-2026-001", "address": "elsewhere", "area": "1",
	})
	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "conflict")

	rr = s.do(http.MethodPost, "/api/parcels/"+parcelID+"/verify", aliceTokens.Access, nil)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "forbidden")
	rr = s.do(http.MethodPost, "/api/parcels/"+parcelID+"/verify", officerToken, nil)
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	s.Equal("ACTIVE", (*testutil.UnmarshalResponse[map[string]any](s.T(), rr))["status"])

	rr = s.do(http.MethodGet, "/api/parcels", bobToken, nil)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	s.JSONEq(`[]`, rr.Body.String())
	rr = s.do(http.MethodGet, "/api/parcels/"+parcelID, bobToken, nil)
	testutil.AssertStatus(s.T(), rr, http.StatusNotFound)

	docID := s.uploadDeed(aliceTokens.Access, parcelID)
	rr = s.do(http.MethodGet, "/api/documents/"+docID, bobToken, nil)
	testutil.AssertStatus(s.T(), rr, http.StatusNotFound)
	rr = s.do(http.MethodPost, "/api/documents/"+docID+"/verify", officerToken, nil)
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	s.Equal(true, (*testutil.UnmarshalResponse[map[string]any](s.T(), rr))["is_verified"])

	rr = s.do(http.MethodPost, "/api/transactions", aliceTokens.Access, map[string]any{
		"parcel": parcelID, "from_owner": alice["id"], "to_owner": bob["id"], "price": "185000.00",
		"documents": []string{docID},
	})
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
	txID := (*testutil.UnmarshalResponse[map[string]any](s.T(), rr))["id"].(string)

	rr = s.do(http.MethodGet, "/api/transactions/"+txID, bobToken, nil)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)

	rr = s.do(http.MethodPost, "/api/transactions/"+txID+"/approve", bobToken, nil)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "forbidden")
	rr = s.do(http.MethodPost, "/api/transactions/"+txID+"/approve", officerToken, nil)
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	s.Equal("COMPLETED", (*testutil.UnmarshalResponse[map[string]any](s.T(), rr))["status"])
	rr = s.do(http.MethodPost, "/api/transactions/"+txID+"/approve", officerToken, nil)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "conflict")

	rr = s.do(http.MethodGet, "/api/parcels/"+parcelID, bobToken, nil)
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	s.Equal(bob["id"], (*testutil.UnmarshalResponse[map[string]any](s.T(), rr))["current_owner"])

	rr = s.do(http.MethodPost, "/api/token/logout", aliceTokens.Access, nil)
	testutil.AssertStatus(s.T(), rr, http.StatusNoContent)
	rr = s.do(http.MethodGet, "/api/users/me", aliceTokens.Access, nil)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")

	approved, err := s.audits.ListByAction(context.Background(), "transaction_approved")
	s.Require().NoError(err)
	s.Len(approved, 1)
}

func (s *RouterSuite) uploadDeed(token, parcelID string) string {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	s.Require().NoError(mw.WriteField("title", "Signed title deed"))
	s.Require().NoError(mw.WriteField("document_type", "TITLE_DEED"))
	s.Require().NoError(mw.WriteField("parcel", parcelID))
	part, err := mw.CreateFormFile("file", "deed.pdf")
	s.Require().NoError(err)
	_, err = part.Write([]byte("%PDF-1.7 deed of sale"))
	s.Require().NoError(err)
	s.Require().NoError(mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rr := testutil.DoRequest(s.router, req)
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())

	doc := *testutil.UnmarshalResponse[map[string]any](s.T(), rr)
	s.True(strings.HasPrefix(doc["ipfs_hash"].(string), "bafkrei"), doc["ipfs_hash"])
	s.Regexp(`^0x[0-9a-f]{64}$`, doc["blockchain_reference"])
	return doc["id"].(string)
}
