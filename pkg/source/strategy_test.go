package source

import (
	"net/url"
	"testing"
)

func TestParamStrategy_Apply(t *testing.T) {
	tests := []struct {
		name     string
		strategy ParamStrategy
		pageSize int
		offset   int
		want     map[string]string
	}{
		{"size_offset first page", StrategySizeOffset, 5000, 0, map[string]string{"size": "5000", "offset": "0"}},
		{"limit_skip", StrategyLimitSkip, 100, 300, map[string]string{"limit": "100", "skip": "300"}},
		{"socrata", StrategySocrata, 50, 150, map[string]string{"$limit": "50", "$offset": "150"}},
		{"per_page first page", StrategyPerPage, 100, 0, map[string]string{"per_page": "100", "page": "1"}},
		{"per_page third page", StrategyPerPage, 100, 200, map[string]string{"per_page": "100", "page": "3"}},
		{"per_page uneven offset", StrategyPerPage, 100, 250, map[string]string{"per_page": "100", "page": "3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := url.Values{}
			tt.strategy.Apply(q, tt.pageSize, tt.offset)

			if len(q) != len(tt.want) {
				t.Errorf("got %d params, want %d: %v", len(q), len(tt.want), q)
			}
			for k, v := range tt.want {
				if got := q.Get(k); got != v {
					t.Errorf("param %s = %q, want %q", k, got, v)
				}
			}
		})
	}
}

func TestDefaultStrategies_Order(t *testing.T) {
	want := []string{"size_offset", "limit_skip", "socrata", "per_page"}
	got := DefaultStrategies()

	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, name := range want {
		if got[i].Name != name {
			t.Errorf("strategy %d = %q, want %q", i, got[i].Name, name)
		}
	}

	// Callers may mutate the returned slice.
	got[0].Name = "changed"
	if DefaultStrategies()[0].Name != "size_offset" {
		t.Error("DefaultStrategies should return a fresh slice")
	}
}
