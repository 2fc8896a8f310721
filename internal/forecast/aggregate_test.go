package forecast

import (
	"testing"
	"time"
)

// day0 is 2024-03-01T00:00:00Z.
var day0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Unix()

func at(day, hour int) int64 {
	return day0 + int64(day)*86400 + int64(hour)*3600
}

func TestAggregate_WidensMinMaxWithinDay(t *testing.T) {
	samples := []Sample{
		{Dt: at(0, 0), TempMin: 10, TempMax: 20, Description: "clear sky", Icon: "01d", Humidity: 40, WindSpeed: 2},
		{Dt: at(0, 3), TempMin: 12, TempMax: 22, Description: "few clouds", Icon: "02d", Humidity: 50, WindSpeed: 3},
		{Dt: at(0, 6), TempMin: 8, TempMax: 18, Description: "rain", Icon: "10d", Humidity: 90, WindSpeed: 7},
		{Dt: at(1, 0), TempMin: 5, TempMax: 9, Description: "snow", Icon: "13d"},
		{Dt: at(2, 0), TempMin: 1, TempMax: 4, Description: "mist", Icon: "50d"},
	}

	got := Aggregate(samples)
	if len(got) != 3 {
		t.Fatalf("len(Aggregate()) = %d, want 3", len(got))
	}

	d := got[0]
	if d.Date != "2024-03-01" {
		t.Errorf("Date = %q, want 2024-03-01", d.Date)
	}
	if d.TempMin != 8 || d.TempMax != 22 {
		t.Errorf("day 1 min/max = %v/%v, want 8/22", d.TempMin, d.TempMax)
	}
	if d.Description != "clear sky" || d.Icon != "01d" || d.Humidity != 40 || d.WindSpeed != 2 {
		t.Errorf("day 1 non-temperature fields = %+v, want values from first sample", d)
	}
	if got[1].Date != "2024-03-02" || got[2].Date != "2024-03-03" {
		t.Errorf("dates = %q, %q, want 2024-03-02, 2024-03-03", got[1].Date, got[2].Date)
	}
}

func TestAggregate_CapsAtFiveDays(t *testing.T) {
	var samples []Sample
	for day := 0; day < 7; day++ {
		for hour := 0; hour < 24; hour += 3 {
			samples = append(samples, Sample{Dt: at(day, hour), TempMin: float64(hour), TempMax: float64(hour + 1)})
		}
	}

	got := Aggregate(samples)
	if len(got) != MaxForecastDays {
		t.Fatalf("len(Aggregate()) = %d, want %d", len(got), MaxForecastDays)
	}
	if got[4].Date != "2024-03-05" {
		t.Errorf("last date = %q, want 2024-03-05", got[4].Date)
	}
	if got[0].TempMin != 0 || got[0].TempMax != 22 {
		t.Errorf("day 1 min/max = %v/%v, want 0/22", got[0].TempMin, got[0].TempMax)
	}
}

func TestAggregate_FewerDaysThanCap(t *testing.T) {
	tests := []struct {
		name    string
		samples []Sample
		want    int
	}{
		{"empty", nil, 0},
		{"one day", []Sample{{Dt: at(0, 0)}, {Dt: at(0, 21)}}, 1},
		{"two days", []Sample{{Dt: at(0, 0)}, {Dt: at(1, 0)}}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate(tt.samples)
			if got == nil {
				t.Fatal("Aggregate() = nil, want empty slice")
			}
			if len(got) != tt.want {
				t.Errorf("len(Aggregate()) = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestAggregate_GroupsByUTCDate(t *testing.T) {
	// 23:00 UTC and 01:00 UTC the next day are different days even though they
	// fall on the same local date in UTC-5.
	samples := []Sample{
		{Dt: at(0, 23), TempMin: 1, TempMax: 1},
		{Dt: at(1, 1), TempMin: 2, TempMax: 2},
	}
	got := Aggregate(samples)
	if len(got) != 2 {
		t.Fatalf("len(Aggregate()) = %d, want 2", len(got))
	}
}

func TestAggregate_KeepsEncounterOrder(t *testing.T) {
	samples := []Sample{
		{Dt: at(2, 0)},
		{Dt: at(0, 0)},
		{Dt: at(2, 3)},
		{Dt: at(1, 0)},
	}
	got := Aggregate(samples)
	want := []string{"2024-03-03", "2024-03-01", "2024-03-02"}
	if len(got) != len(want) {
		t.Fatalf("len(Aggregate()) = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Date != want[i] {
			t.Errorf("got[%d].Date = %q, want %q", i, got[i].Date, want[i])
		}
	}
}

func BenchmarkAggregate(b *testing.B) {
	samples := make([]Sample, 0, 40)
	for i := 0; i < 40; i++ {
		samples = append(samples, Sample{Dt: day0 + int64(i)*10800, TempMin: float64(i % 9), TempMax: float64(i%9 + 4)})
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Aggregate(samples)
	}
}
