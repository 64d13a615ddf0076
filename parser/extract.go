// Package parser turns store page HTML into app snapshots.
//
// The store page is not an API. Data is recovered from the JSON blob the page
// embeds for client-side rendering, at a script position and behind a marker
// that only hold for one rendering of the page. Any redesign of the page
// breaks extraction; ScriptExtractor reports that as an *ExtractError rather
// than guessing.
package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Payload is the decoded page data. Numbers are kept as json.Number.
type Payload map[string]any

// IsEmpty reports whether the page rendered no data at all (JSON null or {}).
func (p Payload) IsEmpty() bool {
	return len(p) == 0
}

// Extractor pulls the structured payload out of a raw page body.
type Extractor interface {
	Extract(body []byte) (Payload, error)
}

// ScriptExtractor reads the payload from the Index-th script element, taking
// the text after Marker as JSON. Text after the JSON value is ignored.
type ScriptExtractor struct {
	Index  int
	Marker string
}

// NewScriptExtractor returns an extractor for the given script position and
// marker.
func NewScriptExtractor(index int, marker string) *ScriptExtractor {
	return &ScriptExtractor{Index: index, Marker: marker}
}

// Extract implements Extractor.
func (e *ScriptExtractor) Extract(body []byte) (Payload, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &ExtractError{Reason: "parse html", Err: err}
	}

	scripts := doc.Find("script")
	if e.Index < 0 || e.Index >= scripts.Length() {
		return nil, &ExtractError{Reason: fmt.Sprintf("script %d out of range, page has %d", e.Index, scripts.Length())}
	}

	_, data, found := strings.Cut(scripts.Eq(e.Index).Text(), e.Marker)
	if !found {
		return nil, &ExtractError{Reason: fmt.Sprintf("marker %q not found in script %d", e.Marker, e.Index)}
	}

	decoder := json.NewDecoder(strings.NewReader(data))
	decoder.UseNumber()
	var payload Payload
	if err := decoder.Decode(&payload); err != nil {
		return nil, &ExtractError{Reason: "decode payload", Err: err}
	}
	return payload, nil
}
