package utils

import (
	"testing"
	"time"
)

func TestMillisOrNow(t *testing.T) {
	// метка сделки MEXC: 2024-01-02T03:04:05.678Z
	const ts int64 = 1704164645678

	got := MillisOrNow(ts)
	want := time.Date(2024, 1, 2, 3, 4, 5, 678*int(time.Millisecond), time.UTC)
	if !got.Equal(want) {
		t.Errorf("MillisOrNow(%d) = %v, want %v", ts, got, want)
	}
	if got.Location() != time.UTC {
		t.Errorf("venue timestamps must be UTC, got %v", got.Location())
	}

	// служебные кадры без метки
	for _, ms := range []int64{0, -1} {
		before := time.Now()
		got := MillisOrNow(ms)
		if got.Before(before.Add(-time.Second)) || got.After(time.Now().Add(time.Second)) {
			t.Errorf("MillisOrNow(%d) = %v, want current time", ms, got)
		}
	}
}

func TestUnixMillis_Monotonic(t *testing.T) {
	a := UnixMillis()
	time.Sleep(2 * time.Millisecond)
	b := UnixMillis()
	if b <= a {
		t.Errorf("UnixMillis did not advance: %d then %d", a, b)
	}
	if d := time.Since(FromUnixMillis(b)); d < 0 || d > time.Second {
		t.Errorf("UnixMillis is off from wall clock by %v", d)
	}
}

// Аптайм движка и срок хранения архива
func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{1500 * time.Millisecond, "1s"},
		{45 * time.Second, "45s"},
		{5*time.Minute + 30*time.Second, "5m30s"},
		{10 * time.Minute, "10m0s"},
		{2*time.Hour + 15*time.Minute + 40*time.Second, "2h15m0s"},
		{30 * 24 * time.Hour, "720h0m0s"},
		{3*24*time.Hour + 5*time.Hour, "77h0m0s"},
		{-45 * time.Second, "45s"},
	}

	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
