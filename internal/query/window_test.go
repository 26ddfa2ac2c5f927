package query

import (
	"fmt"
	"testing"
	"time"
)

func TestParseWindow(t *testing.T) {
	tests := []struct {
		in      string
		want    Window
		wantErr bool
	}{
		{in: "0d", want: Window{Days: true, N: 0}},
		{in: "3d", want: Window{Days: true, N: 3}},
		{in: "0w", want: Window{Days: false, N: 0}},
		{in: "2w", want: Window{Days: false, N: 2}},
		{in: "", wantErr: true},
		{in: "d", wantErr: true},
		{in: "3x", wantErr: true},
		{in: "-1d", wantErr: true},
		{in: "abcd", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseWindow(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseWindow(%q) = nil error, want error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseWindow(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseWindow(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestWindow_Periods_ZeroIsCurrentOnly(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	dayWindow := Window{Days: true, N: 0}
	if got := dayWindow.Periods(now); len(got) != 1 {
		t.Fatalf("0d Periods() = %v, want exactly 1 entry", got)
	}

	weekWindow := Window{Days: false, N: 0}
	if got := weekWindow.Periods(now); len(got) != 1 {
		t.Fatalf("0w Periods() = %v, want exactly 1 entry", got)
	}
}

func TestWindow_Periods_DaysStepOneDayAtATime(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	w := Window{Days: true, N: 3}

	got := w.Periods(now)
	want := []string{"2026-3-15", "2026-3-14", "2026-3-13"}
	if len(got) != len(want) {
		t.Fatalf("Periods() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Periods()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestWindow_Periods_WeeksStepSevenDaysAtATime(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	w := Window{Days: false, N: 2}

	got := w.Periods(now)
	if len(got) != 2 {
		t.Fatalf("Periods() = %v, want 2 entries", got)
	}
	_, wantThisWeek := now.ISOWeek()
	_, wantPriorWeek := now.AddDate(0, 0, -7).ISOWeek()
	if got[0] != fmt.Sprintf("%02d", wantThisWeek) {
		t.Errorf("Periods()[0] = %q, want week %d", got[0], wantThisWeek)
	}
	if got[1] != fmt.Sprintf("%02d", wantPriorWeek) {
		t.Errorf("Periods()[1] = %q, want week %d", got[1], wantPriorWeek)
	}
}
