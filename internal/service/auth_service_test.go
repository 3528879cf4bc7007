package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/job-tracker/internal/domain"
	apperrors "github.com/spec-kit/job-tracker/pkg/util"
)

func TestSignUpSignInSignOut(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	principal, session, err := env.authSvc.SignUp(ctx, SignUpInput{
		EmployeeID:      "EMP001",
		FullName:        " Jane Doe ",
		Password:        "correct horse",
		ConfirmPassword: "correct horse",
	})
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", principal.Profile.FullName)
	assert.Equal(t, "emp001@company.internal", principal.Profile.Email)
	assert.Empty(t, principal.Roles.List())
	assert.NotEmpty(t, session.Token)

	_, _, err = env.authSvc.SignUp(ctx, SignUpInput{
		EmployeeID:      "emp001",
		FullName:        "Someone Else",
		Password:        "password1",
		ConfirmPassword: "password1",
	})
	requireCode(t, err, apperrors.CodeEmployeeIDTaken)

	require.NoError(t, env.roles.Insert(ctx, &domain.RoleAssignment{UserID: principal.UserID(), Role: domain.RoleDeclarant}))

	_, _, err = env.authSvc.SignIn(ctx, "EMP001", "wrong password")
	requireCode(t, err, apperrors.CodeUnauthorized)
	_, _, err = env.authSvc.SignIn(ctx, "NOBODY", "correct horse")
	requireCode(t, err, apperrors.CodeUnauthorized)

	signedIn, session, err := env.authSvc.SignIn(ctx, "EMP001", "correct horse")
	require.NoError(t, err)
	assert.True(t, signedIn.Can(domain.CapClaimJob))

	current, currentSession, err := env.authSvc.CurrentSession(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, principal.UserID(), current.UserID())
	assert.Equal(t, session.TokenID, currentSession.TokenID)
	assert.Equal(t, session.TokenID, current.SessionID)

	require.NoError(t, env.authSvc.SignOut(ctx, currentSession))
	revoked, err := env.authSvc.IsRevoked(ctx, session.TokenID)
	require.NoError(t, err)
	assert.True(t, revoked)

	_, _, err = env.authSvc.CurrentSession(ctx, session.Token)
	requireCode(t, err, apperrors.CodeUnauthorized)
	_, _, err = env.authSvc.CurrentSession(ctx, "not-a-token")
	requireCode(t, err, apperrors.CodeUnauthorized)
}

func TestSignUpValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		input SignUpInput
	}{
		{name: "missing employee id", input: SignUpInput{FullName: "A", Password: "password1", ConfirmPassword: "password1"}},
		{name: "missing name", input: SignUpInput{EmployeeID: "E1", Password: "password1", ConfirmPassword: "password1"}},
		{name: "short password", input: SignUpInput{EmployeeID: "E1", FullName: "A", Password: "short", ConfirmPassword: "short"}},
		{name: "mismatched confirmation", input: SignUpInput{EmployeeID: "E1", FullName: "A", Password: "password1", ConfirmPassword: "password2"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := env.authSvc.SignUp(ctx, tc.input)
			requireCode(t, err, apperrors.CodeValidation)
		})
	}
}

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	manager := env.user(t, "M1", domain.RoleManager)
	owner := env.user(t, "U1")
	other := env.user(t, "U2")

	profile, err := env.profileSvc.UpdateProfile(ctx, owner, owner.UserID(), UpdateProfileInput{FullName: strPtr("New Name")})
	require.NoError(t, err)
	assert.Equal(t, "New Name", profile.FullName)

	_, err = env.profileSvc.UpdateProfile(ctx, other, owner.UserID(), UpdateProfileInput{FullName: strPtr("Hijack")})
	requireCode(t, err, apperrors.CodeForbidden)

	_, err = env.profileSvc.UpdateProfile(ctx, manager, owner.UserID(), UpdateProfileInput{Password: strPtr("new password")})
	require.NoError(t, err)
	_, _, err = env.authSvc.SignIn(ctx, "U1", "new password")
	require.NoError(t, err)

	_, err = env.profileSvc.UpdateProfile(ctx, owner, owner.UserID(), UpdateProfileInput{})
	requireCode(t, err, apperrors.CodeValidation)

	found, err := env.profileSvc.GetByEmployeeID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, owner.UserID(), found.ID)
	_, err = env.profileSvc.GetByEmployeeID(ctx, "nobody")
	requireCode(t, err, apperrors.CodeNotFound)
}
