// Package parser reads household-budget CSV exports into records.
//
// Three exports are understood: income/expense transactions, transfers
// between accounts, and asset balance snapshots. Columns are located by header
// name, either the Japanese labels written by the exporting app or their
// English field names, so column order does not matter.
//
// Rows that cannot be coerced (a bad date, a non-numeric amount, an unknown
// kind or a missing required value) are skipped and returned as diagnostics
// with their file position. Only unreadable input or a header lacking required
// columns fails the whole file.
//
// Example usage:
//
//	p := parser.New(parser.WithFilename("record.csv"))
//	result, err := p.ParseTransactions(ctx, f)
//	if err != nil {
//	    return err
//	}
//	for _, d := range result.Diagnostics {
//	    log.Println(d)
//	}
package parser

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tokuotsu/kakei2grafana/record"
	"github.com/tokuotsu/kakei2grafana/telemetry"
)

// DefaultLocation is used to interpret dates when no location is configured.
const DefaultLocation = "Asia/Tokyo"

// cancelCheckInterval is how many rows are read between context checks.
const cancelCheckInterval = 1024

// Parser converts CSV exports into records. A Parser is not safe for
// concurrent use because it shares an interner between calls.
type Parser struct {
	filename string
	location *time.Location
	interner *Interner
}

// Option configures a Parser.
type Option func(*Parser)

// WithFilename sets the file name reported in positions.
func WithFilename(name string) Option {
	return func(p *Parser) {
		p.filename = name
	}
}

// WithLocation sets the time zone dates are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(p *Parser) {
		p.location = loc
	}
}

// WithInterner shares an interner between parsers, e.g. across the files of one
// workspace.
func WithInterner(in *Interner) Option {
	return func(p *Parser) {
		p.interner = in
	}
}

// New creates a parser.
func New(opts ...Option) *Parser {
	p := &Parser{}
	for _, opt := range opts {
		opt(p)
	}
	if p.location == nil {
		loc, err := time.LoadLocation(DefaultLocation)
		if err != nil {
			loc = time.FixedZone("JST", 9*60*60)
		}
		p.location = loc
	}
	if p.interner == nil {
		p.interner = NewInterner(64)
	}
	return p
}

// Result holds the records of one file together with the diagnostics of the
// rows that were skipped.
type Result[T any] struct {
	Records     []T
	Diagnostics []error
}

// ParseTransactions reads an income/expense export.
func (p *Parser) ParseTransactions(ctx context.Context, r io.Reader) (*Result[record.Transaction], error) {
	return parseRows(ctx, p, r, TransactionSchema, p.transaction)
}

// ParseTransfers reads a transfer export.
func (p *Parser) ParseTransfers(ctx context.Context, r io.Reader) (*Result[record.Transfer], error) {
	return parseRows(ctx, p, r, TransferSchema, p.transfer)
}

// ParseSnapshots reads an asset balance export.
func (p *Parser) ParseSnapshots(ctx context.Context, r io.Reader) (*Result[record.Snapshot], error) {
	return parseRows(ctx, p, r, SnapshotSchema, p.snapshot)
}

// row is the current CSV row together with what is needed to report positions.
type row struct {
	cells    []string
	header   header
	reader   *csv.Reader
	filename string
}

func (r row) get(f Field) string {
	return r.header.get(r.cells, f)
}

// pos returns the position of the start of the row.
func (r row) pos() record.Position {
	line, _ := r.reader.FieldPos(0)
	return record.Position{Filename: r.filename, Line: line}
}

// fieldPos returns the position of the cell of f.
func (r row) fieldPos(f Field) record.Position {
	i, ok := r.header[f]
	if !ok || i >= len(r.cells) {
		return r.pos()
	}
	line, column := r.reader.FieldPos(i)
	return record.Position{Filename: r.filename, Line: line, Column: column}
}

func (r row) isBlank() bool {
	for _, c := range r.cells {
		if c != "" {
			return false
		}
	}
	return true
}

func parseRows[T any](ctx context.Context, p *Parser, r io.Reader, schema Schema, convert func(row) (T, error)) (*Result[T], error) {
	timer := telemetry.StartTimer(ctx, fmt.Sprintf("parser.%s %s", schema.Name, p.filename))
	defer timer.End()

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	result := &Result[T]{}

	headerRow, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.filename, err)
	}

	h, err := newHeader(schema, headerRow, record.Position{Filename: p.filename, Line: 1})
	if err != nil {
		return nil, err
	}

	for n := 0; ; n++ {
		if n%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		cells, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.filename, err)
		}

		current := row{cells: cells, header: h, reader: reader, filename: p.filename}
		if current.isBlank() {
			continue
		}

		rec, err := convert(current)
		if err != nil {
			result.Diagnostics = append(result.Diagnostics, err)
			continue
		}
		result.Records = append(result.Records, rec)
	}

	return result, nil
}

// date coerces the date cell of the row.
func (p *Parser) date(r row) (record.Date, error) {
	raw := r.get(FieldDate)
	if raw == "" {
		return record.Date{}, record.NewFieldError(r.fieldPos(FieldDate), record.MissingField, string(FieldDate), "", nil)
	}
	d, err := parseDate(raw, p.location)
	if err != nil {
		return record.Date{}, record.NewFieldError(r.fieldPos(FieldDate), record.MalformedDate, string(FieldDate), raw, err)
	}
	return d, nil
}

// amount coerces an amount cell of the row.
func (p *Parser) amount(r row, f Field) (decimal.Decimal, error) {
	raw := r.get(f)
	if raw == "" {
		return decimal.Decimal{}, record.NewFieldError(r.fieldPos(f), record.MissingField, string(f), "", nil)
	}
	d, err := parseAmount(raw)
	if err != nil {
		return decimal.Decimal{}, record.NewFieldError(r.fieldPos(f), record.MalformedAmount, string(f), raw, err)
	}
	return d, nil
}

// account reads a required account cell of the row.
func (p *Parser) account(r row, f Field) (record.Account, error) {
	raw := r.get(f)
	if raw == "" {
		return "", record.NewFieldError(r.fieldPos(f), record.MissingField, string(f), "", nil)
	}
	return record.Account(p.interner.Intern(raw)), nil
}

func (p *Parser) transaction(r row) (record.Transaction, error) {
	date, err := p.date(r)
	if err != nil {
		return record.Transaction{}, err
	}

	rawKind := r.get(FieldKind)
	if rawKind == "" {
		return record.Transaction{}, record.NewFieldError(r.fieldPos(FieldKind), record.MissingField, string(FieldKind), "", nil)
	}
	kind, err := record.ParseKind(rawKind)
	if err != nil {
		return record.Transaction{}, record.NewFieldError(r.fieldPos(FieldKind), record.MalformedKind, string(FieldKind), rawKind, err)
	}

	amount, err := p.amount(r, FieldAmount)
	if err != nil {
		return record.Transaction{}, err
	}

	account, err := p.account(r, FieldAccount)
	if err != nil {
		return record.Transaction{}, err
	}

	return record.NewTransaction(date, kind, amount, account,
		record.WithCategory(p.interner.Intern(r.get(FieldCategory)), p.interner.Intern(r.get(FieldSubcategory))),
		record.WithPlace(r.get(FieldPlace)),
		record.WithMemo(r.get(FieldMemo)),
		record.WithPaymentMethod(p.interner.Intern(r.get(FieldPaymentMethod))),
		record.WithTag(p.interner.Intern(r.get(FieldTag))),
		record.WithPosition(r.pos()),
	), nil
}

func (p *Parser) transfer(r row) (record.Transfer, error) {
	date, err := p.date(r)
	if err != nil {
		return record.Transfer{}, err
	}
	amount, err := p.amount(r, FieldAmount)
	if err != nil {
		return record.Transfer{}, err
	}
	from, err := p.account(r, FieldFrom)
	if err != nil {
		return record.Transfer{}, err
	}
	to, err := p.account(r, FieldTo)
	if err != nil {
		return record.Transfer{}, err
	}

	t := record.NewTransfer(date, amount, from, to, r.get(FieldMemo))
	t.Pos = r.pos()
	return t, nil
}

func (p *Parser) snapshot(r row) (record.Snapshot, error) {
	date, err := p.date(r)
	if err != nil {
		return record.Snapshot{}, err
	}
	account, err := p.account(r, FieldAccount)
	if err != nil {
		return record.Snapshot{}, err
	}
	balance, err := p.amount(r, FieldBalance)
	if err != nil {
		return record.Snapshot{}, err
	}

	s := record.NewSnapshot(date, account, balance)
	s.Pos = r.pos()
	return s, nil
}
