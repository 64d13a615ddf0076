package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/appchangelog/models"
	"github.com/google/go-cmp/cmp"
)

var fixedNow = time.Date(2023, 6, 1, 15, 30, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func daysAgo(n int) string {
	return fixedNow.AddDate(0, 0, -n).Format(ReleaseTimestampLayout)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// decodePayload mirrors ScriptExtractor's decoding.
func decodePayload(t *testing.T, doc string) Payload {
	t.Helper()
	decoder := json.NewDecoder(strings.NewReader(doc))
	decoder.UseNumber()
	var payload Payload
	if err := decoder.Decode(&payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	return payload
}

func storePayload(t *testing.T, id, userRating, history string) Payload {
	t.Helper()
	return decodePayload(t, fmt.Sprintf(`{
		"pageData": {"softwarePageData": {"id": %s, "versionHistory": %s}},
		"storePlatformData": {"product-dv-product": {"results": {"284882215": {"userRating": %s}}}}
	}`, id, history, userRating))
}

var acme = models.InputRecord{RowNumber: "7", CompanyName: "Acme", StoreURL: "https://apps.example.test/id284882215"}

func TestMapperMap(t *testing.T) {
	history := `[
		{"versionString": "2.1", "releaseDate": "2023-05-01T07:00:00Z"},
		{"versionString": "2.0", "releaseDate": "2022-01-01T07:00:00Z"},
		{"versionString": "1.0", "releaseDate": "2021-01-01T07:00:00Z"}
	]`
	payload := storePayload(t, "284882215", `{"value": 4.5, "ratingCount": 120}`, history)

	got, err := NewMapper(730, clock).Map(acme, payload)
	if err != nil {
		t.Fatalf("map: %v", err)
	}

	count := int64(120)
	rating := 4.5
	want := &models.AppSnapshot{
		RowNumber:     "7",
		CompanyName:   "Acme",
		StoreURL:      "https://apps.example.test/id284882215",
		RatingCount:   &count,
		AverageRating: &rating,
		AgeDays:       881,
		Versions: []models.Version{
			{Label: "2.1", ReleaseDate: date(2023, 5, 1)},
			{Label: "2.0", ReleaseDate: date(2022, 1, 1)},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestMapperCutoffBoundary(t *testing.T) {
	history := fmt.Sprintf(`[
		{"versionString": "3.0", "releaseDate": %q},
		{"versionString": "2.0", "releaseDate": %q},
		{"versionString": "1.0", "releaseDate": %q}
	]`, daysAgo(10), daysAgo(730), daysAgo(731))
	payload := storePayload(t, `"284882215"`, `{"value": 3, "ratingCount": 9}`, history)

	got, err := NewMapper(730, clock).Map(acme, payload)
	if err != nil {
		t.Fatalf("map: %v", err)
	}

	labels := make([]string, 0, len(got.Versions))
	for _, v := range got.Versions {
		labels = append(labels, v.Label)
	}
	if diff := cmp.Diff([]string{"3.0", "2.0"}, labels); diff != "" {
		t.Fatalf("versions mismatch (-want +got):\n%s", diff)
	}
	if got.AgeDays != 731 {
		t.Fatalf("age days = %d, want 731", got.AgeDays)
	}
}

func TestMapperFutureReleaseKeepsAgeAtZero(t *testing.T) {
	history := fmt.Sprintf(`[{"versionString": "9.9", "releaseDate": %q}]`, daysAgo(-3))
	payload := storePayload(t, "284882215", `{"value": 5, "ratingCount": 1}`, history)

	got, err := NewMapper(730, clock).Map(acme, payload)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if got.AgeDays != 0 {
		t.Fatalf("age days = %d, want 0", got.AgeDays)
	}
	if len(got.Versions) != 1 {
		t.Fatalf("versions = %d, want 1", len(got.Versions))
	}
}

func TestMapperNullRatings(t *testing.T) {
	history := `[{"versionString": "1.0", "releaseDate": "2023-05-30T00:00:00Z"}]`
	payload := storePayload(t, "284882215", `{"value": null}`, history)

	got, err := NewMapper(730, clock).Map(acme, payload)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if got.AverageRating != nil || got.RatingCount != nil {
		t.Fatalf("expected nil ratings, got %v / %v", got.AverageRating, got.RatingCount)
	}
}

func TestMapperErrors(t *testing.T) {
	validHistory := `[{"versionString": "1.0", "releaseDate": "2023-05-30T00:00:00Z"}]`
	validRating := `{"value": 4, "ratingCount": 2}`

	tests := []struct {
		name    string
		payload func(t *testing.T) Payload
		check   func(err error) bool
	}{
		{
			name: "missing page data",
			payload: func(t *testing.T) Payload {
				return decodePayload(t, `{"storePlatformData": {}}`)
			},
			check: isFieldMissing("pageData"),
		},
		{
			name: "missing id",
			payload: func(t *testing.T) Payload {
				return decodePayload(t, `{"pageData": {"softwarePageData": {"versionHistory": []}}}`)
			},
			check: isFieldMissing("pageData.softwarePageData.id"),
		},
		{
			name: "missing rating product",
			payload: func(t *testing.T) Payload {
				return storePayload(t, "1", validRating, validHistory)
			},
			check: isFieldMissing("storePlatformData.product-dv-product.results.1"),
		},
		{
			name: "missing user rating",
			payload: func(t *testing.T) Payload {
				return decodePayload(t, `{
					"pageData": {"softwarePageData": {"id": 5, "versionHistory": []}},
					"storePlatformData": {"product-dv-product": {"results": {"5": {}}}}
				}`)
			},
			check: isFieldMissing("storePlatformData.product-dv-product.results.5.userRating"),
		},
		{
			name: "rating wrong type",
			payload: func(t *testing.T) Payload {
				return storePayload(t, "284882215", `{"value": "great"}`, validHistory)
			},
			check: isFieldMissing("userRating.value"),
		},
		{
			name: "empty history",
			payload: func(t *testing.T) Payload {
				return storePayload(t, "284882215", validRating, `[]`)
			},
			check: func(err error) bool { return errors.Is(err, ErrNoHistory) },
		},
		{
			name: "null history",
			payload: func(t *testing.T) Payload {
				return storePayload(t, "284882215", validRating, `null`)
			},
			check: func(err error) bool { return errors.Is(err, ErrNoHistory) },
		},
		{
			name: "bad timestamp",
			payload: func(t *testing.T) Payload {
				return storePayload(t, "284882215", validRating, `[{"versionString": "1.0", "releaseDate": "May 30, 2023"}]`)
			},
			check: func(err error) bool {
				var dateErr *DateParseError
				return errors.As(err, &dateErr) && dateErr.Value == "May 30, 2023"
			},
		},
		{
			name: "fractional seconds",
			payload: func(t *testing.T) Payload {
				return storePayload(t, "284882215", validRating, `[{"versionString": "1.0", "releaseDate": "2023-05-30T00:00:00.123Z"}]`)
			},
			check: func(err error) bool {
				var dateErr *DateParseError
				return errors.As(err, &dateErr) && dateErr.Value == "2023-05-30T00:00:00.123Z"
			},
		},
		{
			name: "missing version label",
			payload: func(t *testing.T) Payload {
				return storePayload(t, "284882215", validRating, `[{"releaseDate": "2023-05-30T00:00:00Z"}]`)
			},
			check: isFieldMissing("pageData.softwarePageData.versionHistory[0].versionString"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMapper(730, clock).Map(acme, tt.payload(t))
			if err == nil || !tt.check(err) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func isFieldMissing(path string) func(error) bool {
	return func(err error) bool {
		var fieldErr *FieldMissingError
		return errors.As(err, &fieldErr) && fieldErr.Path == path
	}
}

func TestDaysBetween(t *testing.T) {
	tests := []struct {
		name string
		from time.Time
		to   time.Time
		want int
	}{
		{name: "same day", from: date(2023, 6, 1), to: time.Date(2023, 6, 1, 23, 59, 0, 0, time.UTC), want: 0},
		{name: "leap year", from: date(2024, 2, 28), to: date(2024, 3, 1), want: 2},
		{name: "two years", from: date(2021, 6, 1), to: date(2023, 6, 1), want: 730},
		{name: "future", from: date(2023, 6, 3), to: date(2023, 6, 1), want: -2},
		{name: "three centuries", from: date(1700, 1, 1), to: date(2023, 6, 1), want: 118124},
		{name: "year one", from: date(1, 1, 1), to: date(2023, 6, 1), want: 738671},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DaysBetween(tt.from, tt.to); got != tt.want {
				t.Fatalf("DaysBetween() = %d, want %d", got, tt.want)
			}
		})
	}
}
