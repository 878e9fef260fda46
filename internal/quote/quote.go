// Package quote turns provider quote documents into price observations.
package quote

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Observation is one price point emitted by the pipeline.
// Timestamp is when the observation was parsed, not a provider time.
type Observation struct {
	Symbol    string
	Price     decimal.Decimal
	Timestamp time.Time
}

func (o Observation) String() string {
	return fmt.Sprintf("%s{price=%s, timestamp=%s}", o.Symbol, o.Price.String(), o.Timestamp.Format(time.RFC3339))
}

// Quote is the subset of a provider quote we read.
// Only Symbol and FiftyDayAverage are required.
type Quote struct {
	Symbol                    string
	FiftyDayAverage           decimal.Decimal
	TwoHundredDayAverage      decimal.NullDecimal
	FiftyTwoWeekLow           decimal.NullDecimal
	FiftyTwoWeekHigh          decimal.NullDecimal
	FiftyTwoWeekChangePercent decimal.NullDecimal
}

// ParseError reports a quote document that could not be turned into a Quote
type ParseError struct {
	Field string
	Cause error
}

func (e *ParseError) Error() string {
	switch {
	case e.Field != "" && e.Cause != nil:
		return fmt.Sprintf("parse quote: field %s: %v", e.Field, e.Cause)
	case e.Field != "":
		return fmt.Sprintf("parse quote: missing field %s", e.Field)
	default:
		return fmt.Sprintf("parse quote: %v", e.Cause)
	}
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

type document struct {
	QuoteResponse *struct {
		Result *[]json.RawMessage `json:"result"`
	} `json:"quoteResponse"`
}

type result struct {
	Symbol                    *string             `json:"symbol"`
	FiftyDayAverage           decimal.NullDecimal `json:"fiftyDayAverage"`
	TwoHundredDayAverage      decimal.NullDecimal `json:"twoHundredDayAverage"`
	FiftyTwoWeekLow           decimal.NullDecimal `json:"fiftyTwoWeekLow"`
	FiftyTwoWeekHigh          decimal.NullDecimal `json:"fiftyTwoWeekHigh"`
	FiftyTwoWeekChangePercent decimal.NullDecimal `json:"fiftyTwoWeekChangePercent"`
}

// ParseQuote reads the first entry of quoteResponse.result.
// An empty result array is a legitimate "no data" answer and yields nil, nil.
func ParseQuote(raw []byte) (*Quote, error) {
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &ParseError{Cause: err}
	}
	if doc.QuoteResponse == nil {
		return nil, &ParseError{Field: "quoteResponse"}
	}
	if doc.QuoteResponse.Result == nil {
		return nil, &ParseError{Field: "quoteResponse.result"}
	}

	results := *doc.QuoteResponse.Result
	if len(results) == 0 {
		return nil, nil
	}

	var r result
	if err := json.Unmarshal(results[0], &r); err != nil {
		return nil, &ParseError{Field: "quoteResponse.result[0]", Cause: err}
	}
	if r.Symbol == nil || *r.Symbol == "" {
		return nil, &ParseError{Field: "symbol"}
	}
	if !r.FiftyDayAverage.Valid {
		return nil, &ParseError{Field: "fiftyDayAverage"}
	}

	return &Quote{
		Symbol:                    *r.Symbol,
		FiftyDayAverage:           r.FiftyDayAverage.Decimal,
		TwoHundredDayAverage:      r.TwoHundredDayAverage,
		FiftyTwoWeekLow:           r.FiftyTwoWeekLow,
		FiftyTwoWeekHigh:          r.FiftyTwoWeekHigh,
		FiftyTwoWeekChangePercent: r.FiftyTwoWeekChangePercent,
	}, nil
}

// Parser builds observations from quote documents
type Parser struct {
	now func() time.Time
}

// NewParser returns a Parser stamping observations with the wall clock
func NewParser() *Parser {
	return &Parser{now: time.Now}
}

// NewParserWithClock returns a Parser using now for timestamps
func NewParserWithClock(now func() time.Time) *Parser {
	return &Parser{now: now}
}

// Parse returns the observation in raw. ok is false, with a nil error, when
// the document carries no result.
func (p *Parser) Parse(raw []byte) (obs Observation, ok bool, err error) {
	q, err := ParseQuote(raw)
	if err != nil {
		return Observation{}, false, err
	}
	if q == nil {
		return Observation{}, false, nil
	}

	return Observation{
		Symbol:    q.Symbol,
		Price:     q.FiftyDayAverage,
		Timestamp: p.now(),
	}, true, nil
}
