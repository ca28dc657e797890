package formats

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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxnote/backend/internal/middleware"
	"github.com/voxnote/backend/internal/models"
)

// memStore mirrors the repository rules: per-user limit and a single default.
type memStore struct {
	formats []*models.CustomFormat
}

func (m *memStore) owned(userID, id uuid.UUID) *models.CustomFormat {
	for _, f := range m.formats {
		if f.ID == id && f.UserID == userID {
			return f
		}
	}
	return nil
}

func (m *memStore) clearDefault(userID uuid.UUID) {
	for _, f := range m.formats {
		if f.UserID == userID {
			f.IsDefault = false
		}
	}
}

func (m *memStore) List(_ context.Context, userID uuid.UUID) ([]models.CustomFormat, error) {
	out := []models.CustomFormat{}
	for _, f := range m.formats {
		if f.UserID == userID {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (m *memStore) Create(ctx context.Context, userID uuid.UUID, name, prompt string, isDefault bool) (*models.CustomFormat, error) {
	list, _ := m.List(ctx, userID)
	if len(list) >= models.MaxCustomFormats {
		return nil, ErrLimitReached
	}
	if isDefault {
		m.clearDefault(userID)
	}
	f := &models.CustomFormat{ID: uuid.New(), UserID: userID, Name: name, Prompt: prompt, IsDefault: isDefault, CreatedAt: time.Now()}
	m.formats = append(m.formats, f)
	return f, nil
}

func (m *memStore) Update(_ context.Context, userID, id uuid.UUID, name, prompt *string) (*models.CustomFormat, error) {
	f := m.owned(userID, id)
	if f == nil {
		return nil, ErrNotFound
	}
	if name != nil {
		f.Name = *name
	}
	if prompt != nil {
		f.Prompt = *prompt
	}
	return f, nil
}

func (m *memStore) Delete(_ context.Context, userID, id uuid.UUID) error {
	for i, f := range m.formats {
		if f.ID == id && f.UserID == userID {
			m.formats = append(m.formats[:i], m.formats[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *memStore) SetDefault(_ context.Context, userID, id uuid.UUID) (*models.CustomFormat, error) {
	f := m.owned(userID, id)
	if f == nil {
		return nil, ErrNotFound
	}
	m.clearDefault(userID)
	f.IsDefault = true
	return f, nil
}

func newRouter(store Store, userID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(store, nil)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(middleware.ContextUserID, userID); c.Next() })
	r.GET("/formats", h.List)
	r.POST("/formats", h.Create)
	r.PATCH("/formats/:id", h.Update)
	r.DELETE("/formats/:id", h.Delete)
	r.POST("/formats/:id/default", h.SetDefault)
	return r
}

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestNormalizePrompt(t *testing.T) {
	assert.Equal(t, "Summarize: {{transcript}}", NormalizePrompt("  Summarize: {{transcript}} "))
	assert.Equal(t, "Summarize it\n\nTranscript:\n{{transcript}}", NormalizePrompt("Summarize it"))
}

func TestCreateEnforcesLimit(t *testing.T) {
	store := &memStore{}
	r := newRouter(store, uuid.New())
	for i := 0; i < models.MaxCustomFormats; i++ {
		w := do(r, http.MethodPost, "/formats", CreateRequest{Name: "f", Prompt: "p {{transcript}}"})
		require.Equal(t, http.StatusCreated, w.Code)
	}
	w := do(r, http.MethodPost, "/formats", CreateRequest{Name: "f", Prompt: "p"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Len(t, store.formats, models.MaxCustomFormats)
}

func TestCreateValidation(t *testing.T) {
	r := newRouter(&memStore{}, uuid.New())
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/formats", map[string]string{"name": "x"}).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/formats", CreateRequest{Name: "   ", Prompt: "p"}).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/formats", CreateRequest{Name: "x", Prompt: "  "}).Code)
}

func TestSingleDefault(t *testing.T) {
	store := &memStore{}
	userID := uuid.New()
	r := newRouter(store, userID)

	w := do(r, http.MethodPost, "/formats", CreateRequest{Name: "a", Prompt: "{{transcript}}", IsDefault: true})
	require.Equal(t, http.StatusCreated, w.Code)
	do(r, http.MethodPost, "/formats", CreateRequest{Name: "b", Prompt: "{{transcript}}"})
	second := store.formats[1]

	w = do(r, http.MethodPost, "/formats/"+second.ID.String()+"/default", nil)
	require.Equal(t, http.StatusOK, w.Code)

	defaults := 0
	for _, f := range store.formats {
		if f.IsDefault {
			defaults++
			assert.Equal(t, second.ID, f.ID)
		}
	}
	assert.Equal(t, 1, defaults)
}

func TestUpdateAndDeleteAreOwnerScoped(t *testing.T) {
	store := &memStore{}
	owner := uuid.New()
	do(newRouter(store, owner), http.MethodPost, "/formats", CreateRequest{Name: "a", Prompt: "{{transcript}}"})
	id := store.formats[0].ID.String()

	stranger := newRouter(store, uuid.New())
	assert.Equal(t, http.StatusNotFound, do(stranger, http.MethodPatch, "/formats/"+id, map[string]string{"name": "x"}).Code)
	assert.Equal(t, http.StatusNotFound, do(stranger, http.MethodDelete, "/formats/"+id, nil).Code)

	r := newRouter(store, owner)
	w := do(r, http.MethodPatch, "/formats/"+id, map[string]string{"prompt": "Bullets only"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Bullets only\n\nTranscript:\n{{transcript}}", store.formats[0].Prompt)
	assert.Equal(t, "a", store.formats[0].Name)

	assert.Equal(t, http.StatusNoContent, do(r, http.MethodDelete, "/formats/"+id, nil).Code)
	assert.Empty(t, store.formats)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodDelete, "/formats/nope", nil).Code)
}
