package controllers

import (
	"context"
	"net/http"
	"testing"

	"github.com/CUknot/roomchat/notify"
	"github.com/CUknot/roomchat/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndLogin(t *testing.T) {
	api := setupAPI(t, nil)

	w := api.do(http.MethodPost, "/api/auth/register", "", RegisterInput{
		Username: "bob", Email: "bob@test.com", Password: "cat", Password2: "cat",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotEmpty(t, decode(t, w)["token"])

	mail := api.mailer.last(t)
	assert.Equal(t, "bob@test.com", mail.to)
	assert.Equal(t, notify.TemplateAccountConfirmation, mail.template)
	assert.Contains(t, mail.data.Link, mail.data.Token)

	w = api.do(http.MethodPost, "/api/auth/login", "", LoginInput{Username: "bob", Password: "cat"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode(t, w)["token"])

	w = api.do(http.MethodPost, "/api/auth/login", "", LoginInput{Username: "bob", Password: "dog"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRegisterValidation(t *testing.T) {
	api := setupAPI(t, nil)
	api.createUser(t, "bob", true)

	tests := []struct {
		name  string
		input RegisterInput
	}{
		{"bad username", RegisterInput{Username: "1bob", Email: "x@test.com", Password: "a", Password2: "a"}},
		{"username taken", RegisterInput{Username: "bob", Email: "x@test.com", Password: "a", Password2: "a"}},
		{"email taken", RegisterInput{Username: "alice", Email: "bob@test.com", Password: "a", Password2: "a"}},
		{"passwords differ", RegisterInput{Username: "alice", Email: "x@test.com", Password: "a", Password2: "b"}},
		{"bad email", RegisterInput{Username: "alice", Email: "nope", Password: "a", Password2: "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := api.do(http.MethodPost, "/api/auth/register", "", tt.input)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestConfirmAccount(t *testing.T) {
	api := setupAPI(t, nil)
	user, token := api.createUser(t, "bob", false)

	w := api.do(http.MethodGet, "/api/rooms", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(http.MethodGet, "/api/auth/unconfirmed", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["confirmed"])

	w = api.do(http.MethodPost, "/api/auth/resend", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	confirmation := api.mailer.last(t).data.Token

	w = api.do(http.MethodGet, "/api/auth/confirm/"+confirmation, token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	stored, err := api.store.FindUserByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, stored.Confirmed)

	w = api.do(http.MethodGet, "/api/rooms", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestConfirmRejectsForeignToken(t *testing.T) {
	api := setupAPI(t, nil)
	_, token := api.createUser(t, "bob", false)
	alice, _ := api.createUser(t, "alice", false)

	foreign, err := api.signer.Sign(alice.ID, utils.PurposeConfirm, "", 0)
	require.NoError(t, err)
	reset, err := api.signer.Sign(alice.ID, utils.PurposeReset, "", 0)
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, "/api/auth/confirm/"+foreign, token, nil).Code)
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, "/api/auth/confirm/"+reset, token, nil).Code)
}

func TestChangePassword(t *testing.T) {
	api := setupAPI(t, nil)
	_, token := api.createUser(t, "bob", true)

	w := api.do(http.MethodPost, "/api/auth/change-password", token, ChangePasswordInput{
		OldPassword: "dog", Password: "new", Password2: "new",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodPost, "/api/auth/change-password", token, ChangePasswordInput{
		OldPassword: "cat", Password: "new", Password2: "new",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = api.do(http.MethodPost, "/api/auth/login", "", LoginInput{Username: "bob", Password: "new"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestChangeEmail(t *testing.T) {
	api := setupAPI(t, nil)
	user, token := api.createUser(t, "bob", true)
	api.createUser(t, "alice", true)

	w := api.do(http.MethodPost, "/api/auth/change-email", token, EmailInput{Email: "alice@test.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodPost, "/api/auth/change-email", token, EmailInput{Email: "robert@test.com"})
	require.Equal(t, http.StatusOK, w.Code)
	mail := api.mailer.last(t)
	assert.Equal(t, "robert@test.com", mail.to)
	assert.Equal(t, notify.TemplateChangeEmail, mail.template)

	w = api.do(http.MethodGet, "/api/auth/change-email/"+mail.data.Token, token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	stored, err := api.store.FindUserByEmail(context.Background(), "robert@test.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, stored.ID)
}

func TestPasswordReset(t *testing.T) {
	api := setupAPI(t, nil)
	api.createUser(t, "bob", true)

	w := api.do(http.MethodPost, "/api/auth/reset-password", "", EmailInput{Email: "nobody@test.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodPost, "/api/auth/reset-password", "", EmailInput{Email: "bob@test.com"})
	require.Equal(t, http.StatusOK, w.Code)
	mail := api.mailer.last(t)
	assert.Equal(t, notify.TemplatePasswordReset, mail.template)

	w = api.do(http.MethodPost, "/api/auth/reset-password/garbage", "", ResetPasswordInput{Password: "new", Password2: "new"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodPost, "/api/auth/reset-password/"+mail.data.Token, "", ResetPasswordInput{Password: "new", Password2: "new"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = api.do(http.MethodPost, "/api/auth/login", "", LoginInput{Username: "bob", Password: "new"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUniquenessCheckFailureIsServerError(t *testing.T) {
	api := setupAPI(t, nil)
	_, token := api.createUser(t, "bob", true)
	api.failCounts(t)

	w := api.do(http.MethodPost, "/api/auth/change-email", token, EmailInput{Email: "robert@test.com"})
	assert.Equal(t, http.StatusInternalServerError, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "already in use")

	w = api.do(http.MethodPost, "/api/auth/register", "", RegisterInput{
		Username: "alice", Email: "alice@test.com", Password: "cat", Password2: "cat",
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code, w.Body.String())

	api.mailer.mu.Lock()
	defer api.mailer.mu.Unlock()
	assert.Empty(t, api.mailer.sent)
}
