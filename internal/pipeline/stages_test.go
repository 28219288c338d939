package pipeline

import (
	"testing"
	"time"

	"github.com/ppiankov/applytrail/internal/model"
)

func TestFetchSize(t *testing.T) {
	tests := []struct {
		name    string
		limit   int
		seen    int
		ceiling int
		want    int
	}{
		{"empty seen set", 50, 0, 500, 50},
		{"over-fetch by seen count", 50, 20, 500, 70},
		{"capped by ceiling", 200, 1000, 500, 500},
		{"no ceiling", 10, 1000, 0, 1010},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FetchSize(tt.limit, tt.seen, tt.ceiling); got != tt.want {
				t.Errorf("FetchSize(%d, %d, %d) = %d, want %d", tt.limit, tt.seen, tt.ceiling, got, tt.want)
			}
		})
	}
}

func TestFilter(t *testing.T) {
	items := []model.Item{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "b"}, {ID: "d"}, {ID: "e"}}
	seen := map[string]struct{}{"a": {}, "d": {}}

	pending, filtered := Filter(items, seen, 2)

	if filtered != 3 {
		t.Errorf("filtered = %d, want 3", filtered)
	}
	if len(pending) != 2 || pending[0].ID != "b" || pending[1].ID != "c" {
		t.Errorf("pending = %v, want [b c]", pending)
	}
}

func TestFilter_PreservesOrder(t *testing.T) {
	items := []model.Item{{ID: "z"}, {ID: "y"}, {ID: "x"}}

	pending, filtered := Filter(items, nil, 10)

	if filtered != 0 {
		t.Errorf("filtered = %d, want 0", filtered)
	}
	for i, want := range []string{"z", "y", "x"} {
		if pending[i].ID != want {
			t.Errorf("pending[%d] = %s, want %s", i, pending[i].ID, want)
		}
	}
}

func TestLatestReceived(t *testing.T) {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	items := []model.Item{
		{ID: "a", ReceivedAt: base},
		{ID: "b", ReceivedAt: base.Add(3 * time.Hour)},
		{ID: "c", ReceivedAt: base.Add(time.Hour)},
	}

	if got := latestReceived(items); !got.Equal(base.Add(3 * time.Hour)) {
		t.Errorf("latestReceived = %v", got)
	}
	if got := latestReceived(nil); !got.IsZero() {
		t.Errorf("latestReceived(nil) = %v, want zero", got)
	}
}
