package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"landregistry/internal/parcel/handler/mocks"
	"landregistry/internal/parcel/models"
	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
	"landregistry/pkg/testutil"
)

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

func (s *HandlerSuite) TestCreate() {
	parcelID := id.NewParcelID()
	req, userID := testutil.WithRole(testutil.NewJSONRequest(s.T(), http.MethodPost, "/parcels", map[string]any{
		"parcel_id": "LR-9", "address": "addr", "area": "120.50", "coordinates": map[string]any{"lat": 1.5},
	}), id.RoleCitizen)

	s.service.EXPECT().
		Create(gomock.Any(), id.Actor{UserID: userID, Role: id.RoleCitizen}, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ id.Actor, r *models.CreateParcelRequest) (*models.Parcel, error) {
			s.Equal("LR-9", r.ParcelID)
			s.True(decimal.RequireFromString("120.5").Equal(*r.Area))
			s.Equal(1.5, r.Coordinates["lat"])
			return &models.Parcel{ID: parcelID, ParcelNumber: "LR-9", Area: *r.Area, CurrentOwner: userID, Status: models.StatusPending}, nil
		})

	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	body := testutil.UnmarshalResponse[map[string]any](s.T(), rr)
	s.Equal(parcelID.String(), (*body)["id"])
	s.Equal("LR-9", (*body)["parcel_id"])
	s.Equal("120.5", (*body)["area"])
	s.Equal("PENDING", (*body)["status"])
}

func (s *HandlerSuite) TestCreateRejectsSystemFields() {
	req, _ := testutil.WithRole(testutil.NewJSONRequest(s.T(), http.MethodPost, "/parcels", map[string]any{
		"parcel_id": "LR-9", "address": "addr", "area": 10, "status": "ACTIVE",
	}), id.RoleCitizen)
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))
}

func (s *HandlerSuite) TestListWithStatusFilter() {
	req, _ := testutil.WithRole(testutil.NewRequest(s.T(), http.MethodGet, "/parcels?status=active"), id.RoleLandOfficer)
	s.service.EXPECT().
		List(gomock.Any(), gomock.Any(), models.ListFilter{Status: models.StatusActive}).
		Return([]*models.Parcel{}, nil)

	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	s.JSONEq(`[]`, rr.Body.String())
}

func (s *HandlerSuite) TestListUnknownStatus() {
	req, _ := testutil.WithRole(testutil.NewRequest(s.T(), http.MethodGet, "/parcels?status=sold"), id.RoleAdmin)
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeValidation))
}

func (s *HandlerSuite) TestListAnonymous() {
	s.service.EXPECT().List(gomock.Any(), id.Anonymous, gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/parcels"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, string(dErrors.CodeUnauthorized))
}

func (s *HandlerSuite) TestGetNotFound() {
	parcelID := id.NewParcelID()
	req, _ := testutil.WithRole(testutil.NewRequest(s.T(), http.MethodGet, "/parcels/"+parcelID.String()), id.RoleCitizen)
	s.service.EXPECT().Get(gomock.Any(), gomock.Any(), parcelID).
		Return(nil, dErrors.New(dErrors.CodeNotFound, "parcel not found"))

	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, string(dErrors.CodeNotFound))
}

func (s *HandlerSuite) TestGetInvalidID() {
	req, _ := testutil.WithRole(testutil.NewRequest(s.T(), http.MethodGet, "/parcels/not-a-uuid"), id.RoleCitizen)
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeInvalidInput))
}

func (s *HandlerSuite) TestUpdate() {
	parcelID := id.NewParcelID()
	req, _ := testutil.WithRole(testutil.NewJSONRequest(s.T(), http.MethodPatch, "/parcels/"+parcelID.String(), map[string]any{
		"address": "new",
	}), id.RoleCitizen)
	s.service.EXPECT().Update(gomock.Any(), gomock.Any(), parcelID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ id.Actor, _ id.ParcelID, r *models.UpdateParcelRequest) (*models.Parcel, error) {
			s.Require().NotNil(r.Address)
			s.Equal("new", *r.Address)
			s.Nil(r.Area)
			return &models.Parcel{ID: parcelID, Address: "new"}, nil
		})

	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
}

func (s *HandlerSuite) TestUpdateRejectsOwnerChange() {
	parcelID := id.NewParcelID()
	req, _ := testutil.WithRole(testutil.NewJSONRequest(s.T(), http.MethodPatch, "/parcels/"+parcelID.String(), map[string]any{
		"current_owner": id.NewUserID().String(),
	}), id.RoleAdmin)
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))
}

func (s *HandlerSuite) TestVerifyForbidden() {
	parcelID := id.NewParcelID()
	req, _ := testutil.WithRole(testutil.NewRequest(s.T(), http.MethodPost, "/parcels/"+parcelID.String()+"/verify"), id.RoleCitizen)
	s.service.EXPECT().Verify(gomock.Any(), gomock.Any(), parcelID).
		Return(nil, dErrors.New(dErrors.CodeForbidden, "only administrators and land officers may perform this action"))

	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, string(dErrors.CodeForbidden))
}

func (s *HandlerSuite) TestVerifyInvalidState() {
	parcelID := id.NewParcelID()
	req, _ := testutil.WithRole(testutil.NewRequest(s.T(), http.MethodPost, "/parcels/"+parcelID.String()+"/verify"), id.RoleAdmin)
	s.service.EXPECT().Verify(gomock.Any(), gomock.Any(), parcelID).
		Return(nil, dErrors.New(dErrors.CodeInvalidState, "cannot verify parcel: current state is DISPUTED"))

	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, string(dErrors.CodeInvalidState))
}
