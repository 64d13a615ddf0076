package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aluiziolira/appchangelog/models"
)

// ReportWriter receives successful snapshots. Implementations are used from
// a single goroutine.
type ReportWriter interface {
	Write(s *models.AppSnapshot) error
	Close() error
}

// FormatReportLine renders a snapshot as
// row,company,url,num_ratings,rating,age_days[,version,date]...
// Values are joined verbatim without quoting. Null ratings render empty.
func FormatReportLine(s *models.AppSnapshot) string {
	fields := make([]string, 0, 6+2*len(s.Versions))
	fields = append(fields,
		s.RowNumber,
		s.CompanyName,
		s.StoreURL,
		formatCount(s.RatingCount),
		formatRating(s.AverageRating),
		strconv.Itoa(s.AgeDays),
	)
	for _, v := range s.Versions {
		fields = append(fields, v.Label, v.ReleaseDate.Format(models.ReleaseDateLayout))
	}
	return strings.Join(fields, ",")
}

func formatCount(n *int64) string {
	if n == nil {
		return ""
	}
	return strconv.FormatInt(*n, 10)
}

func formatRating(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

// CSVWriter writes report lines, flushing after every row.
type CSVWriter struct {
	file   *os.File
	writer *bufio.Writer
}

// NewCSVWriter creates (truncating) the report file.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create report file: %w", err)
	}

	return &CSVWriter{
		file:   f,
		writer: bufio.NewWriter(f),
	}, nil
}

// Write appends one snapshot line to the report.
func (cw *CSVWriter) Write(s *models.AppSnapshot) error {
	if _, err := cw.writer.WriteString(FormatReportLine(s) + "\n"); err != nil {
		return fmt.Errorf("write report line: %w", err)
	}
	if err := cw.writer.Flush(); err != nil {
		return fmt.Errorf("flush report: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	if err := cw.writer.Flush(); err != nil {
		return fmt.Errorf("flush report: %w", err)
	}
	return cw.file.Close()
}

// JSONWriter writes newline-delimited JSON snapshots.
type JSONWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
}

// NewJSONWriter creates (truncating) the JSONL file.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	return &JSONWriter{
		file:    f,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}, nil
}

// Write appends a snapshot in JSONL format.
func (jw *JSONWriter) Write(s *models.AppSnapshot) error {
	if err := jw.encoder.Encode(s); err != nil {
		return fmt.Errorf("encode json record: %w", err)
	}
	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// ErrorLog appends raw failing input rows for a later rerun. It is never
// truncated.
type ErrorLog struct {
	file   *os.File
	writer *bufio.Writer
}

// OpenErrorLog opens filename in append mode, creating it if needed.
func OpenErrorLog(filename string) (*ErrorLog, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open error log: %w", err)
	}
	return &ErrorLog{file: f, writer: bufio.NewWriter(f)}, nil
}

// WriteRow appends the fields comma-joined, exactly as they were read.
func (el *ErrorLog) WriteRow(fields []string) error {
	if _, err := el.writer.WriteString(strings.Join(fields, ",") + "\n"); err != nil {
		return fmt.Errorf("write error row: %w", err)
	}
	if err := el.writer.Flush(); err != nil {
		return fmt.Errorf("flush error log: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (el *ErrorLog) Close() error {
	if err := el.writer.Flush(); err != nil {
		return fmt.Errorf("flush error log: %w", err)
	}
	return el.file.Close()
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
