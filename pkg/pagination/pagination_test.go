package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(t *testing.T, query string) Params {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?"+query, nil)
	return FromContext(e.NewContext(req, httptest.NewRecorder()))
}

func TestFromContext(t *testing.T) {
	cases := []struct {
		query     string
		wantPage  int
		wantLimit int
	}{
		{"page=3&limit=10", 3, 10},
		{"", 1, DefaultLimit},
		{"page=0&limit=0", 1, DefaultLimit},
		{"page=-2&limit=-5", 1, DefaultLimit},
		{"page=abc&limit=xyz", 1, DefaultLimit},
		{"limit=500", 1, MaxLimit},
	}
	for _, tc := range cases {
		p := paramsFor(t, tc.query)
		if p.Page != tc.wantPage || p.Limit != tc.wantLimit {
			t.Errorf("FromContext(%q) = %+v, want page=%d limit=%d", tc.query, p, tc.wantPage, tc.wantLimit)
		}
	}
}

func TestFromContextWithDefault(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	p := FromContextWithDefault(e.NewContext(req, httptest.NewRecorder()), 50)
	if p.Limit != 50 {
		t.Errorf("limit = %d, want 50", p.Limit)
	}
}

func TestOffset(t *testing.T) {
	if got := (Params{Page: 1, Limit: 20}).Offset(); got != 0 {
		t.Errorf("Offset() = %d, want 0", got)
	}
	if got := (Params{Page: 4, Limit: 10}).Offset(); got != 30 {
		t.Errorf("Offset() = %d, want 30", got)
	}
}

func TestNewMeta(t *testing.T) {
	m := NewMeta(Params{Page: 2, Limit: 10}, 25)
	if m.TotalPages != 3 {
		t.Errorf("TotalPages = %d, want 3", m.TotalPages)
	}
	if m.Total != 25 || m.Page != 2 || m.Limit != 10 {
		t.Errorf("meta = %+v", m)
	}

	if m := NewMeta(Params{Page: 1, Limit: 10}, 0); m.TotalPages != 0 {
		t.Errorf("TotalPages for empty set = %d, want 0", m.TotalPages)
	}
}
