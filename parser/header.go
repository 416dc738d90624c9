package parser

import (
	"fmt"
	"strings"

	"github.com/tokuotsu/kakei2grafana/record"
)

// Field is a logical column of an export.
type Field string

const (
	FieldDate          Field = "date"
	FieldKind          Field = "kind"
	FieldCategory      Field = "category"
	FieldSubcategory   Field = "subcategory"
	FieldAmount        Field = "amount"
	FieldPlace         Field = "place"
	FieldMemo          Field = "memo"
	FieldPaymentMethod Field = "payment_method"
	FieldAccount       Field = "account"
	FieldTag           Field = "tag"
	FieldFrom          Field = "from"
	FieldTo            Field = "to"
	FieldBalance       Field = "balance"
)

// Schema describes the columns of one export type.
type Schema struct {
	Name     string
	Required []Field
	Aliases  map[string]Field
}

// TransactionSchema is the income/expense export.
var TransactionSchema = Schema{
	Name:     "transactions",
	Required: []Field{FieldDate, FieldKind, FieldAmount, FieldAccount},
	Aliases: map[string]Field{
		"日付":        FieldDate,
		"収入/支出":     FieldKind,
		"カテゴリ":      FieldCategory,
		"サブカテゴリ":    FieldSubcategory,
		"金額":        FieldAmount,
		"店舗/場所":     FieldPlace,
		"メモ":        FieldMemo,
		"入金/支払い方法":  FieldPaymentMethod,
		"銀行口座/カード等": FieldAccount,
		"タグ":        FieldTag,
		"type":      FieldKind,
	},
}

// TransferSchema is the transfer export.
var TransferSchema = Schema{
	Name:     "transfers",
	Required: []Field{FieldDate, FieldAmount, FieldFrom, FieldTo},
	Aliases: map[string]Field{
		"日付": FieldDate,
		"金額": FieldAmount,
		"出金": FieldFrom,
		"入金": FieldTo,
		"メモ": FieldMemo,
	},
}

// SnapshotSchema is the asset balance export.
var SnapshotSchema = Schema{
	Name:     "snapshots",
	Required: []Field{FieldDate, FieldAccount, FieldBalance},
	Aliases: map[string]Field{
		"日付":     FieldDate,
		"資産":     FieldAccount,
		"金額":     FieldBalance,
		"amount": FieldBalance,
	},
}

// resolve maps a raw header cell to a field. Logical field names are always
// accepted in addition to the schema's aliases.
func (s Schema) resolve(name string) (Field, bool) {
	name = strings.TrimSpace(name)
	if f, ok := s.Aliases[name]; ok {
		return f, true
	}
	f := Field(strings.ToLower(name))
	for _, req := range s.Required {
		if f == req {
			return f, true
		}
	}
	for _, alias := range s.Aliases {
		if f == alias {
			return f, true
		}
	}
	return "", false
}

// header maps fields to column indexes.
type header map[Field]int

// newHeader maps the header row of a file. Unknown columns are ignored and the
// first occurrence of a repeated column wins.
func newHeader(schema Schema, row []string, pos record.Position) (header, error) {
	h := make(header, len(row))
	for i, cell := range row {
		if i == 0 {
			cell = strings.TrimPrefix(cell, "\ufeff")
		}
		f, ok := schema.resolve(cell)
		if !ok {
			continue
		}
		if _, seen := h[f]; !seen {
			h[f] = i
		}
	}

	var missing []Field
	for _, f := range schema.Required {
		if _, ok := h[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return nil, &HeaderError{Pos: pos, Schema: schema.Name, Missing: missing}
	}
	return h, nil
}

// get returns the trimmed cell of field f, or "" when the column is absent or
// the row is short.
func (h header) get(row []string, f Field) string {
	i, ok := h[f]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// HeaderError reports a file whose header lacks required columns. It is fatal
// for the file.
type HeaderError struct {
	Pos     record.Position
	Schema  string
	Missing []Field
}

func (e *HeaderError) Error() string {
	names := make([]string, len(e.Missing))
	for i, f := range e.Missing {
		names[i] = string(f)
	}
	location := e.Pos.Filename
	if location == "" {
		location = "input"
	}
	return fmt.Sprintf("%s: %s header is missing required columns: %s", location, e.Schema, strings.Join(names, ", "))
}

func (e *HeaderError) GetPosition() record.Position {
	return e.Pos
}
