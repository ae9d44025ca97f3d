package paging_test

import (
	"net/http/httptest"
	"testing"

	"github.com/dalemusser/reviewhub/internal/app/system/paging"
)

func TestParse(t *testing.T) {
	tests := []struct {
		url       string
		wantPage  int
		wantLimit int
	}{
		{"/n", 1, paging.DefaultLimit},
		{"/n?page=3&limit=10", 3, 10},
		{"/n?page=0&limit=-5", 1, paging.DefaultLimit},
		{"/n?page=abc", 1, paging.DefaultLimit},
		{"/n?limit=1000", 1, paging.MaxLimit},
	}
	for _, tt := range tests {
		p := paging.Parse(httptest.NewRequest("GET", tt.url, nil))
		if p.Page != tt.wantPage || p.Limit != tt.wantLimit {
			t.Errorf("Parse(%q) = %+v, want page=%d limit=%d", tt.url, p, tt.wantPage, tt.wantLimit)
		}
	}
}

func TestSkip(t *testing.T) {
	if got := (paging.Page{Page: 3, Limit: 20}).Skip(); got != 40 {
		t.Errorf("Skip = %d, want 40", got)
	}
}

func TestNewMeta(t *testing.T) {
	m := paging.NewMeta(paging.Page{Page: 1, Limit: 20}, 41)
	if m.TotalPages != 3 || !m.HasNext {
		t.Errorf("unexpected meta: %+v", m)
	}
	m = paging.NewMeta(paging.Page{Page: 3, Limit: 20}, 41)
	if m.HasNext {
		t.Error("last page should not have next")
	}
	m = paging.NewMeta(paging.Page{Page: 1, Limit: 20}, 0)
	if m.TotalPages != 0 || m.HasNext {
		t.Errorf("empty meta: %+v", m)
	}
}
