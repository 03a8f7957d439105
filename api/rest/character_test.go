package rest_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCharacterCreateAndList(t *testing.T) {
	env := newEnv(t)
	token := loginAndGetToken(t, env.r, "charuser", "pass1234")

	w := doRequest(env.r, http.MethodPost, "/api/characters", map[string]string{"name": "Hero", "side": "Bear"}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var ch createdChar
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ch))
	assert.Equal(t, "Hero", ch.Name)
	assert.Equal(t, "Bear", ch.Side)
	assert.NotEmpty(t, ch.StashID)
	assert.NotEmpty(t, ch.EquipmentID)

	w = doRequest(env.r, http.MethodGet, "/api/characters", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Characters []createdChar `json:"characters"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Characters, 1)
	assert.Equal(t, ch.ID, resp.Characters[0].ID)
}

func TestCharacterCreate_DefaultSide(t *testing.T) {
	env := newEnv(t)
	token := loginAndGetToken(t, env.r, "charuser", "pass1234")
	ch := env.createChar(t, token, "Plain")
	assert.Equal(t, "Usec", ch.Side)
}

func TestCharacterCreate_InvalidSide(t *testing.T) {
	env := newEnv(t)
	token := loginAndGetToken(t, env.r, "charuser", "pass1234")
	w := doRequest(env.r, http.MethodPost, "/api/characters", map[string]string{"name": "Odd", "side": "Savage"}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCharacterCreate_DuplicateName(t *testing.T) {
	env := newEnv(t)
	a := loginAndGetToken(t, env.r, "usera", "pass1234")
	b := loginAndGetToken(t, env.r, "userb", "pass1234")
	env.createChar(t, a, "Taken")

	w := doRequest(env.r, http.MethodPost, "/api/characters", map[string]string{"name": "Taken"}, b)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCharacterCreate_MaxReached(t *testing.T) {
	env := newEnv(t)
	token := loginAndGetToken(t, env.r, "charuser", "pass1234")
	for i := 0; i < 3; i++ {
		env.createChar(t, token, fmt.Sprintf("Alt%d", i))
	}
	w := doRequest(env.r, http.MethodPost, "/api/characters", map[string]string{"name": "Alt3"}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCharacterList_Unauthorized(t *testing.T) {
	env := newEnv(t)
	w := doRequest(env.r, http.MethodGet, "/api/characters", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
