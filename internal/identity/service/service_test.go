package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"landregistry/internal/identity/models"
	"landregistry/internal/identity/store"
	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
	audit "landregistry/pkg/platform/audit"
	"landregistry/pkg/platform/audit/publisher"
	auditmemory "landregistry/pkg/platform/audit/store/memory"
)

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	users   *store.InMemoryUserStore
	audits  *auditmemory.InMemoryStore
	service *Service
	admin   id.Actor
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.users = store.New()
	s.audits = auditmemory.NewInMemoryStore()
	s.service = New(s.users, WithAuditPublisher(publisher.NewPublisher(s.audits)))

	admin, err := s.service.Bootstrap(s.ctx, &models.RegisterRequest{
		Username:   "root",
		Password:   "bootstrap-secret",
		NationalID: "ADMIN-0",
	})
	s.Require().NoError(err)
	s.admin = admin.Actor()
}

func (s *ServiceSuite) register(username, nationalID string) *models.User {
	user, err := s.service.Register(s.ctx, id.Anonymous, &models.RegisterRequest{
		Username:   username,
		Password:   "parcel-" + nationalID,
		NationalID: nationalID,
	})
	s.Require().NoError(err)
	return user
}

func (s *ServiceSuite) TestRegister() {
	s.Run("anonymous registration defaults to unverified citizen", func() {
		user := s.register("kemi", "NID-1")
		s.Equal(id.RoleCitizen, user.Role)
		s.False(user.IsVerified)
		s.NotEqual("parcel-NID-1", user.PasswordHash)

		events, err := s.audits.ListByAction(s.ctx, audit.EventUserRegistered)
		s.Require().NoError(err)
		s.NotEmpty(events)
	})

	s.Run("duplicate national id is a conflict", func() {
		_, err := s.service.Register(s.ctx, id.Anonymous, &models.RegisterRequest{
			Username: "other", Password: "parcel-NID-1", NationalID: "NID-1",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("weak password is rejected before anything is stored", func() {
		_, err := s.service.Register(s.ctx, id.Anonymous, &models.RegisterRequest{
			Username: "weak", Password: "12345678", NationalID: "NID-W",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		_, err = s.users.FindByUsername(s.ctx, "weak")
		s.Error(err)
	})

	s.Run("privileged roles need an admin", func() {
		req := func() *models.RegisterRequest {
			return &models.RegisterRequest{
				Username: "officer", Password: "survey-lines", NationalID: "NID-O", UserType: "LAND_OFFICER",
			}
		}
		_, err := s.service.Register(s.ctx, id.Anonymous, req())
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		citizen := s.register("lola", "NID-L").Actor()
		_, err = s.service.Register(s.ctx, citizen, req())
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		officer, err := s.service.Register(s.ctx, s.admin, req())
		s.Require().NoError(err)
		s.Equal(id.RoleLandOfficer, officer.Role)
	})
}

func (s *ServiceSuite) TestBootstrapRunsOnce() {
	_, err := s.service.Bootstrap(s.ctx, &models.RegisterRequest{
		Username: "root2", Password: "bootstrap-secret", NationalID: "ADMIN-1",
	})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	root, err := s.service.Me(s.ctx, s.admin)
	s.Require().NoError(err)
	s.True(root.IsVerified)
	s.Equal(id.RoleAdmin, root.Role)
}

func (s *ServiceSuite) TestVisibility() {
	ada := s.register("ada", "NID-A")
	ben := s.register("ben", "NID-B")

	s.Run("citizens list only themselves", func() {
		users, err := s.service.List(s.ctx, ada.Actor())
		s.Require().NoError(err)
		s.Require().Len(users, 1)
		s.Equal(ada.ID, users[0].ID)
	})

	s.Run("admins list everyone", func() {
		users, err := s.service.List(s.ctx, s.admin)
		s.Require().NoError(err)
		s.Len(users, 3)
	})

	s.Run("other users are not found", func() {
		_, err := s.service.Get(s.ctx, ada.Actor(), ben.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("anonymous list is unauthorized", func() {
		_, err := s.service.List(s.ctx, id.Anonymous)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *ServiceSuite) TestUpdate() {
	ada := s.register("ada", "NID-A")
	email := "Ada@Registry.GOV"
	first := " Ada "

	updated, err := s.service.Update(s.ctx, ada.Actor(), ada.ID, &models.UpdateUserRequest{
		Email: &email, FirstName: &first,
	})
	s.Require().NoError(err)
	s.Equal("Ada@registry.gov", updated.Email)
	s.Equal("Ada", updated.FirstName)
	s.Equal("NID-A", updated.NationalID)

	s.Run("citizen cannot set blockchain address", func() {
		addr := "0x52908400098527886e0f7030069857d2e4169ee7"
		_, err := s.service.Update(s.ctx, ada.Actor(), ada.ID, &models.UpdateUserRequest{BlockchainAddress: &addr})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		denied, err := s.audits.ListByAction(s.ctx, audit.EventAuthorizationDenied)
		s.Require().NoError(err)
		s.Len(denied, 1)

		updated, err := s.service.Update(s.ctx, s.admin, ada.ID, &models.UpdateUserRequest{BlockchainAddress: &addr})
		s.Require().NoError(err)
		s.Equal("0x52908400098527886E0F7030069857D2E4169EE7", updated.BlockchainAddress)
	})
}

func (s *ServiceSuite) TestChangePassword() {
	ada := s.register("ada", "NID-A")

	err := s.service.ChangePassword(s.ctx, ada.Actor(), &models.ChangePasswordRequest{
		CurrentPassword: "wrong", NewPassword: "brand-new-secret",
	})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	err = s.service.ChangePassword(s.ctx, ada.Actor(), &models.ChangePasswordRequest{
		CurrentPassword: "parcel-NID-A", NewPassword: "brand-new-secret",
	})
	s.Require().NoError(err)

	_, err = s.service.Authenticate(s.ctx, "ada", "parcel-NID-A")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	user, err := s.service.Authenticate(s.ctx, "ada", "brand-new-secret")
	s.Require().NoError(err)
	s.Equal(id.RoleCitizen, user.Role)
	s.False(user.IsVerified)
}

func (s *ServiceSuite) TestVerifyUser() {
	ada := s.register("ada", "NID-A")

	s.Run("citizen is refused and nothing changes", func() {
		_, err := s.service.VerifyUser(s.ctx, ada.Actor(), ada.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		found, err := s.service.Get(s.ctx, s.admin, ada.ID)
		s.Require().NoError(err)
		s.False(found.IsVerified)
	})

	s.Run("admin verifies, re-verify is a no-op", func() {
		verified, err := s.service.VerifyUser(s.ctx, s.admin, ada.ID)
		s.Require().NoError(err)
		s.True(verified.IsVerified)

		again, err := s.service.VerifyUser(s.ctx, s.admin, ada.ID)
		s.Require().NoError(err)
		s.True(again.IsVerified)

		events, err := s.audits.ListByAction(s.ctx, audit.EventUserVerified)
		s.Require().NoError(err)
		s.Len(events, 1)
	})

	s.Run("unknown user", func() {
		_, err := s.service.VerifyUser(s.ctx, s.admin, id.NewUserID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestAuthenticateUnknownUser() {
	_, err := s.service.Authenticate(s.ctx, "nobody", "whatever-secret")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	ok, err := s.service.Exists(s.ctx, id.NewUserID())
	s.Require().NoError(err)
	s.False(ok)
}
