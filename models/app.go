// Package models defines data structures for the changelog scraper.
package models

import "time"

// ReleaseDateLayout is the rendering used for version release dates.
const ReleaseDateLayout = "2006-01-02"

// InputRecord is one row of the input file.
type InputRecord struct {
	RowNumber   string
	CompanyName string
	StoreURL    string

	// Raw holds the fields exactly as read, for the error log.
	Raw []string
}

// Version is a single changelog entry.
type Version struct {
	Label       string    `json:"version"`
	ReleaseDate time.Time `json:"release_date"`
}

// AppSnapshot is the rating and changelog data gathered for one app.
type AppSnapshot struct {
	RowNumber     string    `json:"row_number"`
	CompanyName   string    `json:"company"`
	StoreURL      string    `json:"url"`
	RatingCount   *int64    `json:"num_ratings"`
	AverageRating *float64  `json:"rating"`
	AgeDays       int       `json:"age_days"`
	Versions      []Version `json:"versions"`
}

// Outcome classifies how a row finished.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeEmpty
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeEmpty:
		return "empty"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Result is the outcome of processing a single row. Snapshot is set only for
// OutcomeSuccess and Err only for OutcomeFailure.
type Result struct {
	Outcome  Outcome
	Snapshot *AppSnapshot
	Err      error
}

// Success wraps a snapshot.
func Success(s *AppSnapshot) Result {
	return Result{Outcome: OutcomeSuccess, Snapshot: s}
}

// Empty reports a row that was fetched and parsed but had nothing to report.
func Empty() Result {
	return Result{Outcome: OutcomeEmpty}
}

// Failure wraps a row-fatal error.
func Failure(err error) Result {
	return Result{Outcome: OutcomeFailure, Err: err}
}

// RunResult holds the overall result of a batch run.
type RunResult struct {
	StartTime      time.Time
	EndTime        time.Time
	RowsRead       int
	Malformed      int
	Succeeded      int
	Empty          int
	Failed         int
	FailuresByType map[string]int
}
