package xray

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
)

// ErrMalformed reports a body that is not valid JSON.
var ErrMalformed = errors.New("xray: body is not valid JSON")

var utf8BOM = []byte("\xef\xbb\xbf")

type rawDocument struct {
	Remarks   json.RawMessage   `json:"remarks"`
	Outbounds []json.RawMessage `json:"outbounds"`
}

// Parse decodes a fetched body into configuration documents.
//
// The body must be valid JSON. An array yields one document per element;
// any other value is treated as a single-element array. Elements that are
// not objects, and outbounds whose shape does not match the model, are
// dropped rather than failing the whole body.
func Parse(body []byte) ([]Document, error) {
	// Some providers prefix a UTF-8 BOM, which json.Valid rejects.
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(bytes.TrimSpace(body), utf8BOM))
	if !json.Valid(trimmed) {
		return nil, ErrMalformed
	}

	var elements []json.RawMessage
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &elements); err != nil {
			return nil, ErrMalformed
		}
	case 'n':
		// null
		return []Document{}, nil
	default:
		elements = []json.RawMessage{trimmed}
	}

	docs := make([]Document, 0, len(elements))
	for _, element := range elements {
		doc, ok := parseDocument(element)
		if !ok {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func parseDocument(element json.RawMessage) (Document, bool) {
	element = bytes.TrimSpace(element)
	if len(element) == 0 || element[0] != '{' {
		return Document{}, false
	}
	var raw rawDocument
	if err := json.Unmarshal(element, &raw); err != nil {
		// outbounds is present but not an array; keep the remarks only.
		var remarksOnly struct {
			Remarks json.RawMessage `json:"remarks"`
		}
		if err := json.Unmarshal(element, &remarksOnly); err != nil {
			return Document{}, false
		}
		raw.Remarks = remarksOnly.Remarks
		raw.Outbounds = nil
	}

	doc := Document{
		Remarks:   remarksText(raw.Remarks),
		Outbounds: make([]Outbound, 0, len(raw.Outbounds)),
	}
	for _, item := range raw.Outbounds {
		var out Outbound
		if err := json.Unmarshal(item, &out); err != nil {
			doc.Skipped++
			continue
		}
		doc.Outbounds = append(doc.Outbounds, out)
	}
	return doc, true
}

// remarksText accepts a string or number label. Anything else counts as absent.
func remarksText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		f, err := strconv.ParseFloat(string(raw), 64)
		if err != nil || f == 0 {
			return ""
		}
		return strconv.FormatFloat(f, 'f', -1, 64)
	default:
		return ""
	}
}
