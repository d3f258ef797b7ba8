package hl7v2

import (
	"context"
	"slices"
	"strings"
)

// Parser decodes HL7v2 result messages. A Parser holds no per-call state
// and is safe for concurrent use once constructed.
type Parser struct {
	extractors map[string]Extractor
}

// Option configures a Parser.
type Option func(*Parser)

// WithExtractor registers (or replaces) the extractor for a segment code.
func WithExtractor(code string, ex Extractor) Option {
	return func(p *Parser) {
		p.extractors[code] = ex
	}
}

// NewParser creates a Parser with the default MSH, PID and OBX extractors.
func NewParser(opts ...Option) *Parser {
	p := &Parser{extractors: DefaultExtractors()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse decodes raw into a Message.
//
// It fails with ErrEmptyInput when raw is empty and with a *FormatError
// when the first non-empty line is not an MSH segment. Every other defect
// is absorbed: missing fields take their zero value, and PID/OBX segments
// too short to read are dropped and reported in Message.Warnings.
// ctx is only checked before parsing starts.
func (p *Parser) Parse(ctx context.Context, raw string) (*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, ErrEmptyInput
	}

	lines := splitLines(raw)
	if err := validate(lines); err != nil {
		return nil, err
	}

	msg := Message{Observations: []Observation{}}
	for i, line := range lines {
		msg = p.reduce(msg, newSegment(i+1, line))
	}
	return &msg, nil
}

// reduce folds one segment into msg. Unknown segment codes leave msg as is.
func (p *Parser) reduce(msg Message, seg Segment) Message {
	ex, ok := p.extractors[seg.Code()]
	if !ok {
		return msg
	}

	next, err := ex.Extract(msg, seg)
	if err == nil {
		return next
	}

	// A failing extractor drops its segment, never the message.
	msg.Warnings = append(slices.Clip(msg.Warnings), Warning{
		Line:    seg.Line,
		Segment: seg.Code(),
		Reason:  err.Error(),
	})
	return msg
}

func validate(lines []string) error {
	if len(lines) == 0 || !strings.HasPrefix(lines[0], SegmentMSH) {
		return &FormatError{Reason: "must start with MSH segment"}
	}
	return nil
}

// ReadHeader reads the MSH metadata of raw without decoding the rest of
// the message. ok is false when raw does not start with an MSH segment.
func ReadHeader(raw string) (Header, bool) {
	lines := splitLines(raw)
	if validate(lines) != nil {
		return Header{}, false
	}
	return readHeader(newSegment(1, lines[0])), true
}
