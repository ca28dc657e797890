package usage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxnote/backend/internal/middleware"
)

type memBonus map[uuid.UUID]int

func (m memBonus) AddBonusMinutes(_ context.Context, userID uuid.UUID, minutes int) (int, error) {
	if _, ok := m[userID]; !ok {
		return 0, ErrUserNotFound
	}
	m[userID] += minutes
	return m[userID], nil
}

func TestGetUsage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	store := &memStore{acct: Account{PlanMinutes: 60, BonusMinutes: 30, MinutesUsed: 12, Period: "2026-03"}}
	userID := uuid.New()
	h := NewHandler(newService(store, now), memBonus{}, nil)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(middleware.ContextUserID, userID); c.Next() })
	r.GET("/usage", h.Get)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/usage", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":{"used_minutes":12,"limit_minutes":90,"period":"2026-03"}}`, w.Body.String())
}

func TestGrantBonus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	userID := uuid.New()
	bonus := memBonus{userID: 10}
	h := NewHandler(nil, bonus, nil)
	r := gin.New()
	r.POST("/admin/users/:id/bonus-minutes", h.GrantBonus)

	post := func(id, body string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/admin/users/"+id+"/bonus-minutes", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, post(userID.String(), `{"minutes":20}`))
	assert.Equal(t, 30, bonus[userID])
	assert.Equal(t, http.StatusBadRequest, post(userID.String(), `{"minutes":0}`))
	assert.Equal(t, http.StatusBadRequest, post("nope", `{"minutes":5}`))
	assert.Equal(t, http.StatusNotFound, post(uuid.New().String(), `{"minutes":5}`))
}
