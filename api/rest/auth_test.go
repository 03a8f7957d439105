package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	mw "github.com/IBigIBruce/MTGA-Backend/middleware"
	"github.com/IBigIBruce/MTGA-Backend/model"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func postJSON(r *gin.Engine, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type loginResult struct {
	Token     string `json:"token"`
	AccountID int64  `json:"account_id"`
}

func login(t *testing.T, r *gin.Engine, user, pass string) loginResult {
	t.Helper()
	w := postJSON(r, "/api/auth/login", map[string]string{"username": user, "password": pass})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res loginResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.NotEmpty(t, res.Token)
	require.NotZero(t, res.AccountID)
	return res
}

func (e *testEnv) session(t *testing.T, token string) (string, bool) {
	t.Helper()
	v, err := e.cache.Get(context.Background(), mw.SessionPrefix+token)
	if err != nil {
		return "", false
	}
	return v, true
}

func TestLogin_AutoRegisterStoresHashAndSession(t *testing.T) {
	env := newEnv(t)
	res := login(t, env.r, "alice", "pass1234")

	var acc model.Account
	require.NoError(t, env.db.First(&acc, res.AccountID).Error)
	assert.Equal(t, "alice", acc.Username)
	assert.NotEqual(t, "pass1234", acc.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte("pass1234")))

	owner, ok := env.session(t, res.Token)
	require.True(t, ok, "session key missing")
	assert.Equal(t, strconv.FormatInt(res.AccountID, 10), owner)

	again := login(t, env.r, "alice", "pass1234")
	assert.Equal(t, res.AccountID, again.AccountID)
}

func TestLogin_Rejections(t *testing.T) {
	env := newEnv(t)
	login(t, env.r, "bob", "correct")
	login(t, env.r, "banned", "pass1234")
	require.NoError(t, env.db.Model(&model.Account{}).Where("username = ?", "banned").Update("status", 0).Error)

	cases := []struct {
		name   string
		body   map[string]string
		status int
	}{
		{"wrong password", map[string]string{"username": "bob", "password": "wrong"}, http.StatusUnauthorized},
		{"banned account", map[string]string{"username": "banned", "password": "pass1234"}, http.StatusForbidden},
		{"short username", map[string]string{"username": "b", "password": "pass1234"}, http.StatusBadRequest},
		{"missing password", map[string]string{"username": "carol"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := postJSON(env.r, "/api/auth/login", tc.body)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
		})
	}
}

func TestLogin_TokenOpensCharacterRoutes(t *testing.T) {
	env := newEnv(t)
	alice := login(t, env.r, "alice", "pass1234")
	bob := login(t, env.r, "bob", "pass1234")

	ch := env.createChar(t, alice.Token, "Alice")
	w := doRequest(env.r, http.MethodGet, "/api/characters/"+strconv.FormatInt(ch.ID, 10)+"/inventory", nil, alice.Token)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(env.r, http.MethodGet, "/api/characters/"+strconv.FormatInt(ch.ID, 10)+"/inventory", nil, bob.Token)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(env.r, http.MethodGet, "/api/characters", nil, bob.Token)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Characters []createdChar `json:"characters"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Empty(t, list.Characters)
}

func TestLogout_DropsSession(t *testing.T) {
	env := newEnv(t)
	res := login(t, env.r, "dave", "pass1234")

	w := postJSON(env.r, "/api/auth/logout", nil, "Authorization", "Bearer "+res.Token)
	assert.Equal(t, http.StatusOK, w.Code)
	_, ok := env.session(t, res.Token)
	assert.False(t, ok)

	// The JWT is still well formed but its session is gone.
	w = doRequest(env.r, http.MethodGet, "/api/characters", nil, res.Token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = postJSON(env.r, "/api/auth/logout", nil, "Authorization", "Bearer "+res.Token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefresh_RotatesSession(t *testing.T) {
	env := newEnv(t)
	old := login(t, env.r, "erin", "pass1234")

	w := postJSON(env.r, "/api/auth/refresh", nil, "Authorization", "Bearer "+old.Token)
	require.Equal(t, http.StatusOK, w.Code)
	var res loginResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.NotEmpty(t, res.Token)

	_, ok := env.session(t, old.Token)
	assert.False(t, ok, "old session kept")
	owner, ok := env.session(t, res.Token)
	require.True(t, ok)
	assert.Equal(t, strconv.FormatInt(old.AccountID, 10), owner)

	assert.Equal(t, http.StatusUnauthorized, doRequest(env.r, http.MethodGet, "/api/characters", nil, old.Token).Code)
	assert.Equal(t, http.StatusOK, doRequest(env.r, http.MethodGet, "/api/characters", nil, res.Token).Code)
}

func TestRefresh_NoToken(t *testing.T) {
	env := newEnv(t)
	w := postJSON(env.r, "/api/auth/refresh", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
