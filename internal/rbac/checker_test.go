package rbac_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mind-engage/viva/internal/rbac"
)

func TestDefaultPolicy(t *testing.T) {
	c := rbac.NewChecker(nil)
	cases := []struct {
		role, perm string
		want       bool
	}{
		{"reviewer", rbac.PermQuestionExport, true},
		{"reviewer", rbac.PermQuestionImport, false},
		{"author", rbac.PermQuestionDelete, true},
		{"author", "users:list", false},
		{"admin", "anything", true},
		{"", rbac.PermQuestionView, false},
	}
	for _, tc := range cases {
		if got := c.Has(tc.role, tc.perm); got != tc.want {
			t.Errorf("Has(%q, %q) = %v", tc.role, tc.perm, got)
		}
	}
}

func TestRequire(t *testing.T) {
	h := rbac.Require(rbac.PermQuestionImport)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	for role, want := range map[string]int{
		"author":   http.StatusNoContent,
		"reviewer": http.StatusForbidden,
		"":         http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req = req.WithContext(rbac.WithRole(req.Context(), role))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Errorf("role %q: status %d, want %d", role, rec.Code, want)
		}
	}
}
