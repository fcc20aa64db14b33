package controllers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetUser(t *testing.T) {
	api := setupAPI(t, nil)
	bob, _ := api.createUser(t, "bob", true)
	category := api.createCategory(t, "Go")
	for i := 0; i < 7; i++ {
		api.createRoom(t, fmt.Sprintf("room %d", i), bob, category)
	}

	w := api.do(http.MethodGet, "/api/users/bob", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Len(t, body["rooms"].([]interface{}), profileRooms)
	assert.Contains(t, body["avatar"], "gravatar.com/avatar/")
	assert.NotContains(t, w.Body.String(), "bob@test.com")

	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/api/users/nobody", "", nil).Code)
}

func TestEditProfile(t *testing.T) {
	api := setupAPI(t, nil)
	bob, token := api.createUser(t, "bob", true)

	w := api.do(http.MethodPut, "/api/users/me", token, EditProfileInput{Name: "Bob Smith", AboutMe: "gopher"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	stored, err := api.store.FindUserByID(context.Background(), bob.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bob Smith", stored.Name)
	assert.Equal(t, "gopher", stored.AboutMe)
	assert.NoError(t, stored.ValidatePassword("cat"))

	w = api.do(http.MethodPut, "/api/users/me", token, EditProfileInput{Name: strings.Repeat("x", 65)})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
