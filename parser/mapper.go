package parser

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aluiziolira/appchangelog/models"
)

// ReleaseTimestampLayout is the format of versionHistory[].releaseDate.
const ReleaseTimestampLayout = "2006-01-02T15:04:05Z"

// Mapper walks a Payload and builds an AppSnapshot.
type Mapper struct {
	// MaxAgeDays bounds which versions are reported. Older versions still
	// count towards AgeDays.
	MaxAgeDays int
	Now        func() time.Time
}

// NewMapper returns a mapper that reports versions released at most
// maxAgeDays before now().
func NewMapper(maxAgeDays int, now func() time.Time) *Mapper {
	if now == nil {
		now = time.Now
	}
	return &Mapper{MaxAgeDays: maxAgeDays, Now: now}
}

// Map extracts ratings and version history for rec from payload.
func (m *Mapper) Map(rec models.InputRecord, payload Payload) (*models.AppSnapshot, error) {
	app, err := objectAt(payload, "pageData", "softwarePageData")
	if err != nil {
		return nil, err
	}
	appID, err := idString(app["id"])
	if err != nil {
		return nil, err
	}

	results, err := objectAt(payload, "storePlatformData", "product-dv-product", "results")
	if err != nil {
		return nil, err
	}
	product, ok := results[appID].(map[string]any)
	if !ok {
		return nil, &FieldMissingError{Path: "storePlatformData.product-dv-product.results." + appID}
	}
	userRating, ok := product["userRating"].(map[string]any)
	if !ok {
		return nil, &FieldMissingError{Path: "storePlatformData.product-dv-product.results." + appID + ".userRating"}
	}
	rating, err := optionalFloat(userRating, "value")
	if err != nil {
		return nil, err
	}
	ratingCount, err := optionalInt(userRating, "ratingCount")
	if err != nil {
		return nil, err
	}

	history, err := versionHistory(app)
	if err != nil {
		return nil, err
	}

	today := m.Now()
	oldest := 0
	versions := make([]models.Version, 0, len(history))
	for i, raw := range history {
		entry, ok := raw.(map[string]any)
		if !ok {
			return nil, &FieldMissingError{Path: fmt.Sprintf("pageData.softwarePageData.versionHistory[%d]", i)}
		}
		label, ok := entry["versionString"].(string)
		if !ok {
			return nil, &FieldMissingError{Path: fmt.Sprintf("pageData.softwarePageData.versionHistory[%d].versionString", i)}
		}
		released, err := parseReleaseDate(entry["releaseDate"])
		if err != nil {
			return nil, err
		}

		diff := DaysBetween(released, today)
		if diff > oldest {
			oldest = diff
		}
		if diff > m.MaxAgeDays {
			continue
		}
		versions = append(versions, models.Version{Label: label, ReleaseDate: released})
	}

	return &models.AppSnapshot{
		RowNumber:     rec.RowNumber,
		CompanyName:   rec.CompanyName,
		StoreURL:      rec.StoreURL,
		RatingCount:   ratingCount,
		AverageRating: rating,
		AgeDays:       oldest,
		Versions:      versions,
	}, nil
}

// DaysBetween counts whole calendar days from the date of from to the date
// of to, ignoring time of day and zone offsets.
func DaysBetween(from, to time.Time) int {
	a := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int((b.Unix() - a.Unix()) / secondsPerDay)
}

const secondsPerDay = 24 * 60 * 60

func parseReleaseDate(v any) (time.Time, error) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, &DateParseError{Value: fmt.Sprint(v), Err: fmt.Errorf("not a string")}
	}
	if len(s) != len(ReleaseTimestampLayout) {
		return time.Time{}, &DateParseError{Value: s, Err: fmt.Errorf("want layout %s", ReleaseTimestampLayout)}
	}
	ts, err := time.Parse(ReleaseTimestampLayout, s)
	if err != nil {
		return time.Time{}, &DateParseError{Value: s, Err: err}
	}
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC), nil
}

func versionHistory(app map[string]any) ([]any, error) {
	raw, present := app["versionHistory"]
	if !present || raw == nil {
		return nil, ErrNoHistory
	}
	history, ok := raw.([]any)
	if !ok {
		return nil, &FieldMissingError{Path: "pageData.softwarePageData.versionHistory"}
	}
	if len(history) == 0 {
		return nil, ErrNoHistory
	}
	return history, nil
}

func objectAt(root map[string]any, path ...string) (map[string]any, error) {
	current := root
	for i, key := range path {
		next, ok := current[key].(map[string]any)
		if !ok {
			return nil, &FieldMissingError{Path: strings.Join(path[:i+1], ".")}
		}
		current = next
	}
	return current, nil
}

func idString(v any) (string, error) {
	switch id := v.(type) {
	case json.Number:
		return id.String(), nil
	case string:
		if id != "" {
			return id, nil
		}
	}
	return "", &FieldMissingError{Path: "pageData.softwarePageData.id"}
}

func optionalFloat(obj map[string]any, key string) (*float64, error) {
	switch v := obj[key].(type) {
	case nil:
		return nil, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, &FieldMissingError{Path: "userRating." + key}
		}
		return &f, nil
	default:
		return nil, &FieldMissingError{Path: "userRating." + key}
	}
}

func optionalInt(obj map[string]any, key string) (*int64, error) {
	switch v := obj[key].(type) {
	case nil:
		return nil, nil
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return &n, nil
		}
		f, err := v.Float64()
		if err != nil || f != float64(int64(f)) {
			return nil, &FieldMissingError{Path: "userRating." + key}
		}
		n := int64(f)
		return &n, nil
	default:
		return nil, &FieldMissingError{Path: "userRating." + key}
	}
}
