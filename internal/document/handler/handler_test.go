package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/doctrack/doctrack/internal/document"
	"github.com/doctrack/doctrack/internal/document/repository"
	"github.com/doctrack/doctrack/internal/document/routing"
	"github.com/doctrack/doctrack/internal/document/service"
	"github.com/doctrack/doctrack/internal/models"
	"github.com/doctrack/doctrack/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

var principals = map[string]models.Principal{
	"u1":   {ID: "u1", Role: models.RoleUser, Department: "A", DisplayName: "Ana"},
	"u2":   {ID: "u2", Role: models.RoleUser, Department: "B", DisplayName: "Ben"},
	"u3":   {ID: "u3", Role: models.RoleUser, Department: "C", DisplayName: "Cy"},
	"u4":   {ID: "u4", Role: models.RoleUser, Department: "D", DisplayName: "Dee"},
	"root": {ID: "root", Role: models.RoleAdmin, Department: "ADMIN", DisplayName: "Root"},
}

// fakeAuth attaches the principal named by the X-User header.
func fakeAuth(c *gin.Context) {
	if p, ok := principals[c.GetHeader("X-User")]; ok {
		c.Set(middleware.PrincipalKey, p)
	}
	c.Next()
}

func newRouter(svc Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	g := gin.New()
	api := g.Group("/api", fakeAuth)
	RegisterDocumentRoutes(api, svc)
	return g
}

func newService() *service.Service {
	return service.New(service.Options{
		Repo: repository.NewMemoryRepo(),
		Resolver: routing.ResolverFunc(func(id string) (string, bool) {
			p, ok := principals[id]
			return p.Department, ok
		}),
	})
}

func do(t *testing.T, g *gin.Engine, user, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("X-User", user)
	}
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)
	return w
}

func decodeDoc(t *testing.T, w *httptest.ResponseRecorder) document.Document {
	t.Helper()
	var d document.Document
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	return d
}

func TestDocumentRoutesLifecycle(t *testing.T) {
	g := newRouter(newService())

	w := do(t, g, "u1", http.MethodPost, "/api/documents",
		`{"title":"Budget","description":"Q1 budget request.","recipient":"B","communicationUrgency":"Urgent"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeDoc(t, w)
	require.NotEmpty(t, created.ReferenceNumber)
	require.Equal(t, document.StatusIncoming, created.Status)
	id := created.ID

	w = do(t, g, "u2", http.MethodPost, "/api/documents/"+id+"/receive", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, document.StatusProcessing, decodeDoc(t, w).Status)

	w = do(t, g, "u2", http.MethodPost, "/api/documents/"+id+"/forward", `{"destination":"C","remarks":"for review"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "C", decodeDoc(t, w).AssignedTo)

	// u4 never held the document
	w = do(t, g, "u4", http.MethodPost, "/api/documents/"+id+"/receive", "")
	require.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, g, "u3", http.MethodPost, "/api/documents/"+id+"/receive", "")
	require.Equal(t, http.StatusOK, w.Code)
	w = do(t, g, "u3", http.MethodPost, "/api/documents/"+id+"/complete", `{"remarks":"done"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, document.StatusCompleted, decodeDoc(t, w).Status)

	// completing twice is an invalid transition
	w = do(t, g, "u3", http.MethodPost, "/api/documents/"+id+"/complete", "")
	require.Equal(t, http.StatusConflict, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotEmpty(t, body["reason"])

	w = do(t, g, "root", http.MethodGet, "/api/documents/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, decodeDoc(t, w).Log)
}

func TestDocumentRoutesListViews(t *testing.T) {
	g := newRouter(newService())
	w := do(t, g, "u1", http.MethodPost, "/api/documents", `{"title":"Memo","description":"Short.","recipient":"B"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	tests := []struct {
		user, view string
		want       int
	}{
		{"u2", "incoming", 1},
		{"u1", "outgoing", 1},
		{"u1", "incoming", 0},
		{"u3", "", 0},
		{"root", "all", 1},
	}
	for _, tc := range tests {
		t.Run(tc.user+"/"+tc.view, func(t *testing.T) {
			w := do(t, g, tc.user, http.MethodGet, "/api/documents?view="+tc.view, "")
			require.Equal(t, http.StatusOK, w.Code)
			var docs []document.Document
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &docs))
			require.Len(t, docs, tc.want)
		})
	}
}

func TestDocumentRoutesErrors(t *testing.T) {
	g := newRouter(newService())

	tests := []struct {
		name, user, method, path, body string
		want                            int
	}{
		{"unauthenticated", "", http.MethodGet, "/api/documents", "", http.StatusUnauthorized},
		{"missing title", "u1", http.MethodPost, "/api/documents", `{"description":"x","recipient":"B"}`, http.StatusBadRequest},
		{"malformed body", "u1", http.MethodPost, "/api/documents", `{`, http.StatusBadRequest},
		{"unknown id", "u1", http.MethodGet, "/api/documents/nope", "", http.StatusNotFound},
		{"collisions need admin", "u1", http.MethodGet, "/api/admin/collisions", "", http.StatusForbidden},
		{"purge needs cutoff", "root", http.MethodPost, "/api/admin/purge", `{}`, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, g, tc.user, tc.method, tc.path, tc.body)
			require.Equal(t, tc.want, w.Code, w.Body.String())
		})
	}
}

func TestDocumentRoutesAdmin(t *testing.T) {
	g := newRouter(newService())

	w := do(t, g, "u1", http.MethodGet, "/api/control-numbers/next", "")
	require.Equal(t, http.StatusOK, w.Code)
	var next map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &next))
	require.True(t, strings.HasPrefix(next["referenceNumber"], "A "), next["referenceNumber"])

	w = do(t, g, "root", http.MethodGet, "/api/admin/collisions", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `[]`, w.Body.String())

	w = do(t, g, "root", http.MethodPost, "/api/admin/purge", `{"before":"2000-01-01T00:00:00Z","dryRun":true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, g, "root", http.MethodPost, "/api/admin/purge", `{"before":"2000-01-01T00:00:00Z"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

type unavailableService struct {
	Service
}

func (unavailableService) Get(context.Context, models.Principal, string) (*document.Document, error) {
	return nil, document.ErrCollaboratorUnavailable
}

func TestDocumentRoutesStorageUnavailable(t *testing.T) {
	g := newRouter(unavailableService{})
	w := do(t, g, "u1", http.MethodGet, "/api/documents/x", "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}
