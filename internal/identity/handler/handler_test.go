package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"landregistry/internal/identity/handler/mocks"
	"landregistry/internal/identity/models"
	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
	"landregistry/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service
type HandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.router = chi.NewRouter()
	New(s.service, logger).Register(s.router)
}

func (s *HandlerSuite) TestRegisterAnonymous() {
	userID := id.NewUserID()
	s.service.EXPECT().
		Register(gomock.Any(), id.Anonymous, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ id.Actor, req *models.RegisterRequest) (*models.User, error) {
			s.Equal("ngozi", req.Username)
			return &models.User{ID: userID, Username: "ngozi", Role: id.RoleCitizen, PasswordHash: "secret-hash"}, nil
		})

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/users", map[string]string{
		"username": "ngozi", "password": "hunter-2-long", "national_id": "NID-7",
	})
	rr := testutil.DoRequest(s.router, req)

	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	s.NotContains(rr.Body.String(), "secret-hash")
	body := testutil.UnmarshalResponse[map[string]any](s.T(), rr)
	s.Equal(userID.String(), (*body)["id"])
	s.Equal("CITIZEN", (*body)["user_type"])
}

func (s *HandlerSuite) TestRegisterRejectsUnknownFields() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/users", map[string]any{
		"username": "x", "is_verified": true,
	})
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))
}

func (s *HandlerSuite) TestListPassesActor() {
	req, userID := testutil.WithRole(testutil.NewRequest(s.T(), http.MethodGet, "/users"), id.RoleCitizen)
	s.service.EXPECT().
		List(gomock.Any(), id.Actor{UserID: userID, Role: id.RoleCitizen}).
		Return([]*models.User{{ID: userID, Username: "me"}}, nil)

	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	users := testutil.UnmarshalResponse[[]map[string]any](s.T(), rr)
	s.Len(*users, 1)
}

func (s *HandlerSuite) TestListAnonymousIsUnauthorized() {
	s.service.EXPECT().
		List(gomock.Any(), id.Anonymous).
		Return(nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/users"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, string(dErrors.CodeUnauthorized))
}

func (s *HandlerSuite) TestMeRoutesBeforeID() {
	req, userID := testutil.WithRole(testutil.NewRequest(s.T(), http.MethodGet, "/users/me"), id.RoleNotary)
	s.service.EXPECT().
		Me(gomock.Any(), id.Actor{UserID: userID, Role: id.RoleNotary}).
		Return(&models.User{ID: userID}, nil)

	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
}

func (s *HandlerSuite) TestGetInvalidID() {
	req, _ := testutil.WithRole(testutil.NewRequest(s.T(), http.MethodGet, "/users/not-a-uuid"), id.RoleAdmin)
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeInvalidInput))
}

func (s *HandlerSuite) TestGetNotFound() {
	target := id.NewUserID()
	req, _ := testutil.WithRole(testutil.NewRequest(s.T(), http.MethodGet, "/users/"+target.String()), id.RoleCitizen)
	s.service.EXPECT().
		Get(gomock.Any(), gomock.Any(), target).
		Return(nil, dErrors.New(dErrors.CodeNotFound, "user not found"))

	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, string(dErrors.CodeNotFound))
}

func (s *HandlerSuite) TestUpdate() {
	target := id.NewUserID()
	req, _ := testutil.WithRole(
		testutil.NewJSONRequest(s.T(), http.MethodPatch, "/users/"+target.String(), map[string]string{"first_name": "Tunde"}),
		id.RoleCitizen)
	s.service.EXPECT().
		Update(gomock.Any(), gomock.Any(), target, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ id.Actor, _ id.UserID, req *models.UpdateUserRequest) (*models.User, error) {
			s.Require().NotNil(req.FirstName)
			s.Nil(req.Email)
			return &models.User{ID: target, FirstName: *req.FirstName}, nil
		})

	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
}

func (s *HandlerSuite) TestUpdateRejectsNationalID() {
	target := id.NewUserID()
	req, _ := testutil.WithRole(
		testutil.NewJSONRequest(s.T(), http.MethodPatch, "/users/"+target.String(), map[string]string{"national_id": "NEW"}),
		id.RoleAdmin)
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
}

func (s *HandlerSuite) TestChangePassword() {
	req, _ := testutil.WithRole(
		testutil.NewJSONRequest(s.T(), http.MethodPost, "/users/me/password", map[string]string{
			"current_password": "old-secret-1", "new_password": "new-secret-2",
		}), id.RoleCitizen)
	s.service.EXPECT().ChangePassword(gomock.Any(), gomock.Any(), &models.ChangePasswordRequest{
		CurrentPassword: "old-secret-1", NewPassword: "new-secret-2",
	}).Return(nil)

	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusNoContent)
}

func (s *HandlerSuite) TestVerifyForbidden() {
	target := id.NewUserID()
	req, _ := testutil.WithRole(testutil.NewRequest(s.T(), http.MethodPost, "/users/"+target.String()+"/verify"), id.RoleCitizen)
	s.service.EXPECT().
		VerifyUser(gomock.Any(), gomock.Any(), target).
		Return(nil, dErrors.New(dErrors.CodeForbidden, "only administrators and land officers may perform this action"))

	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, string(dErrors.CodeForbidden))
}
