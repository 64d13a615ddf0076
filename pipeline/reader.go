package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aluiziolira/appchangelog/models"
)

// ErrMalformedRow marks an input line that does not hold exactly three fields.
var ErrMalformedRow = errors.New("pipeline: malformed input row")

// InputReader reads "row_number,company_name,store_url" records. Fields are
// quoted with '|' instead of '"'; a doubled "||" inside a quoted field is a
// literal pipe.
type InputReader struct {
	r *csv.Reader
}

// NewInputReader wraps r.
func NewInputReader(r io.Reader) *InputReader {
	reader := csv.NewReader(quoteSwapReader{r: r})
	reader.Comma = ','
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	return &InputReader{r: reader}
}

// Next returns the next record. Malformed lines yield an error wrapping
// ErrMalformedRow and the reader stays usable; io.EOF ends the input.
func (ir *InputReader) Next() (models.InputRecord, error) {
	fields, err := ir.r.Read()
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return models.InputRecord{}, fmt.Errorf("%w: %v", ErrMalformedRow, err)
		}
		return models.InputRecord{}, err
	}

	for i, f := range fields {
		fields[i] = swapQuotes(f)
	}
	if len(fields) != 3 {
		line, _ := ir.r.FieldPos(0)
		return models.InputRecord{Raw: fields}, fmt.Errorf("%w: line %d has %d fields", ErrMalformedRow, line, len(fields))
	}

	return models.InputRecord{
		RowNumber:   fields[0],
		CompanyName: fields[1],
		StoreURL:    fields[2],
		Raw:         fields,
	}, nil
}

// quoteSwapReader exchanges '"' and '|' so encoding/csv treats '|' as the
// quote character. Both are single bytes, so UTF-8 sequences are untouched.
type quoteSwapReader struct {
	r io.Reader
}

func (q quoteSwapReader) Read(p []byte) (int, error) {
	n, err := q.r.Read(p)
	for i := 0; i < n; i++ {
		switch p[i] {
		case '|':
			p[i] = '"'
		case '"':
			p[i] = '|'
		}
	}
	return n, err
}

func swapQuotes(s string) string {
	if !strings.ContainsAny(s, `"|`) {
		return s
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '|':
			return '"'
		case '"':
			return '|'
		}
		return r
	}, s)
}
