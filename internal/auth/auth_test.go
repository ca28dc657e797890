package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/voxnote/backend/internal/models"
)

type memUsers struct {
	byEmail map[string]*models.User
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	if u, ok := m.byEmail[email]; ok {
		return u, nil
	}
	return nil, ErrNotFound
}

func (m *memUsers) Create(_ context.Context, email, hash, name string, role models.Role, plan int) (*models.User, error) {
	u := &models.User{ID: uuid.New(), Email: email, Password: hash, FullName: name, Role: role, PlanMinutes: plan, CreatedAt: time.Now()}
	m.byEmail[email] = u
	return u, nil
}

func (m *memUsers) List(context.Context) ([]models.UserPublic, error) { return nil, nil }

func post(r http.Handler, path string, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterAndLogin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := &memUsers{byEmail: map[string]*models.User{}}
	jwtSvc := NewJWTService("secret", 1)
	h := NewHandler(store, jwtSvc, 60, nil)
	r := gin.New()
	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)

	w := post(r, "/auth/register", RegisterRequest{Email: "Ann@Example.com", Password: "hunter22", FullName: "Ann"})
	require.Equal(t, http.StatusCreated, w.Code)
	u := store.byEmail["ann@example.com"]
	require.NotNil(t, u)
	require.Equal(t, models.RoleUser, u.Role)
	require.Equal(t, 60, u.PlanMinutes)

	w = post(r, "/auth/register", RegisterRequest{Email: "ann@example.com", Password: "hunter22", FullName: "Ann"})
	require.Equal(t, http.StatusConflict, w.Code)

	w = post(r, "/auth/login", LoginRequest{Email: "ann@example.com", Password: "wrong"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = post(r, "/auth/login", LoginRequest{Email: "ann@example.com", Password: "hunter22"})
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data TokenResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	claims, err := jwtSvc.Validate(body.Data.Token)
	require.NoError(t, err)
	require.Equal(t, u.ID, claims.UserID)
	require.Equal(t, "user", claims.Role)
}

func TestValidateRejectsForeignToken(t *testing.T) {
	token, err := NewJWTService("a", 1).Generate(uuid.New(), "x@y.z", "user")
	require.NoError(t, err)
	_, err = NewJWTService("b", 1).Validate(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}
