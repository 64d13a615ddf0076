package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aluiziolira/appchangelog/models"
	"github.com/aluiziolira/appchangelog/parser"
	"github.com/aluiziolira/appchangelog/scraper"
)

// Fetcher retrieves a store page body.
type Fetcher interface {
	Fetch(ctx context.Context, storeURL string) ([]byte, error)
}

// Mapper turns a decoded page payload into a snapshot.
type Mapper interface {
	Map(rec models.InputRecord, payload parser.Payload) (*models.AppSnapshot, error)
}

// Processor runs fetch, extract and map for each input row in order. A
// failing row is logged for rerun and never stops the batch.
type Processor struct {
	fetcher   Fetcher
	extractor parser.Extractor
	mapper    Mapper
	report    ReportWriter
	errorLog  *ErrorLog
	metrics   *scraper.Metrics
}

// NewProcessor wires the row stages to their outputs. metrics may be nil.
func NewProcessor(fetcher Fetcher, extractor parser.Extractor, mapper Mapper, report ReportWriter, errorLog *ErrorLog, metrics *scraper.Metrics) *Processor {
	return &Processor{
		fetcher:   fetcher,
		extractor: extractor,
		mapper:    mapper,
		report:    report,
		errorLog:  errorLog,
		metrics:   metrics,
	}
}

// ProcessRow classifies a single record. It performs no output.
func (p *Processor) ProcessRow(ctx context.Context, rec models.InputRecord) models.Result {
	body, err := p.fetcher.Fetch(ctx, rec.StoreURL)
	if err != nil {
		return models.Failure(err)
	}

	payload, err := p.extractor.Extract(body)
	if err != nil {
		return models.Failure(err)
	}
	if payload.IsEmpty() {
		return models.Empty()
	}

	snapshot, err := p.mapper.Map(rec, payload)
	if err != nil {
		return models.Failure(err)
	}
	return models.Success(snapshot)
}

// Run processes every row from input. It returns early only when the context
// is cancelled or the report or error log cannot be written.
func (p *Processor) Run(ctx context.Context, input io.Reader) (*models.RunResult, error) {
	result := &models.RunResult{
		StartTime:      time.Now(),
		FailuresByType: make(map[string]int),
	}
	defer func() {
		result.EndTime = time.Now()
	}()

	reader := NewInputReader(input)
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return result, nil
		}
		if errors.Is(err, ErrMalformedRow) {
			result.Malformed++
			p.metrics.IncRow("malformed")
			slog.Debug("skipping malformed row", slog.Any("error", err))
			continue
		}
		if err != nil {
			return result, fmt.Errorf("read input: %w", err)
		}

		result.RowsRead++
		slog.Debug("parsing row", slog.String("row", rec.RowNumber), slog.String("company", rec.CompanyName))

		res := p.ProcessRow(ctx, rec)
		p.metrics.IncRow(res.Outcome.String())

		switch res.Outcome {
		case models.OutcomeSuccess:
			slog.Debug("row result", slog.String("row", rec.RowNumber), slog.String("line", FormatReportLine(res.Snapshot)))
			if err := p.report.Write(res.Snapshot); err != nil {
				return result, fmt.Errorf("write report row %s: %w", rec.RowNumber, err)
			}
			result.Succeeded++
		case models.OutcomeEmpty:
			slog.Debug("no result for row", slog.String("row", rec.RowNumber))
			result.Empty++
		case models.OutcomeFailure:
			stage := Stage(res.Err)
			slog.Debug("row failed",
				slog.String("row", rec.RowNumber),
				slog.String("company", rec.CompanyName),
				slog.String("stage", stage),
				slog.String("kind", FailureKind(res.Err)),
				slog.Any("error", res.Err),
			)
			p.metrics.IncError(stage)
			if err := p.errorLog.WriteRow(rec.Raw); err != nil {
				return result, fmt.Errorf("write error log row %s: %w", rec.RowNumber, err)
			}
			result.Failed++
			result.FailuresByType[FailureKind(res.Err)]++
		}
	}
}

// FailureKind refines Stage for fetch failures with the fetch error class,
// e.g. "fetch:not_found". Other stages are returned unchanged.
func FailureKind(err error) string {
	var fetchErr *scraper.FetchError
	if errors.As(err, &fetchErr) {
		return "fetch:" + fetchErr.Class()
	}
	return Stage(err)
}

// Stage names the pipeline step an error came from.
func Stage(err error) string {
	if err == nil {
		return "none"
	}
	var fetchErr *scraper.FetchError
	if errors.As(err, &fetchErr) {
		return "fetch"
	}
	var extractErr *parser.ExtractError
	if errors.As(err, &extractErr) {
		return "extract"
	}
	var fieldErr *parser.FieldMissingError
	if errors.As(err, &fieldErr) {
		return "field_missing"
	}
	var dateErr *parser.DateParseError
	if errors.As(err, &dateErr) {
		return "date_parse"
	}
	if errors.Is(err, parser.ErrNoHistory) {
		return "no_history"
	}
	return "other"
}
