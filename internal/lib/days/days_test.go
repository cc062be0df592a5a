package days

import (
	"testing"
	"time"
)

func TestRemaining_TableTests(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		end  time.Time
		want int
	}{
		{
			name: "exactly thirty days ahead",
			end:  now.Add(30 * Day),
			want: 30,
		},
		{
			name: "one second short of seven days",
			end:  now.Add(7*Day - time.Second),
			want: 6,
		},
		{
			name: "less than a day left",
			end:  now.Add(3 * time.Hour),
			want: 0,
		},
		{
			name: "end equals now",
			end:  now,
			want: 0,
		},
		{
			name: "already expired",
			end:  now.Add(-time.Second),
			want: 0,
		},
		{
			name: "long expired",
			end:  now.Add(-40 * Day),
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Remaining(now, tt.end)
			if got != tt.want {
				t.Errorf("Remaining() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAdd(t *testing.T) {
	start := time.Date(2024, 3, 30, 23, 0, 0, 0, time.UTC)

	if got := Add(start, 7); !got.Equal(start.Add(168 * time.Hour)) {
		t.Errorf("Add(7) = %s", got)
	}
	if got := Add(start, 30); got.Sub(start) != 720*time.Hour {
		t.Errorf("Add(30) spans %s", got.Sub(start))
	}
}
