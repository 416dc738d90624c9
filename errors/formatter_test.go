package errors

import (
	"encoding/json"
	stderrors "errors"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/tokuotsu/kakei2grafana/parser"
	"github.com/tokuotsu/kakei2grafana/record"
)

const recordCSV = "日付,収入/支出,金額,銀行口座/カード等\n" +
	"2024/01/05,支出,1200,現金\n" +
	"2024/01/06,支出,abc,現金\n"

func amountError() *record.FieldError {
	return record.NewFieldError(
		record.Position{Filename: "record.csv", Line: 3, Column: 19},
		record.MalformedAmount, "amount", "abc", nil,
	)
}

func TestTextFormatterWithoutSource(t *testing.T) {
	tf := NewTextFormatter()
	assert.Equal(t, `record.csv:3:19: malformed amount in amount "abc"; record skipped`, tf.Format(amountError()))
}

func TestTextFormatterWithSource(t *testing.T) {
	tf := NewTextFormatter(WithSources(map[string][]byte{"record.csv": []byte(recordCSV)}))

	// The caret sits under "abc": 支出 is two double-width characters.
	want := `record.csv:3:19: malformed amount in amount "abc"; record skipped` + "\n\n" +
		"    2 | 2024/01/05,支出,1200,現金\n" +
		"    3 | 2024/01/06,支出,abc,現金\n" +
		"      |                 ^"
	assert.Equal(t, want, tf.Format(amountError()))
}

func TestTextFormatterWholeRecord(t *testing.T) {
	tf := NewTextFormatter(
		WithSources(map[string][]byte{"record.csv": []byte(recordCSV)}),
		WithContextLines(0),
	)
	err := record.NewFieldError(record.Position{Filename: "record.csv", Line: 2}, record.MissingField, "tag", "", nil)

	want := "record.csv:2: missing field in tag; record skipped\n\n" +
		"    2 | 2024/01/05,支出,1200,現金"
	assert.Equal(t, want, tf.Format(err))
}

func TestTextFormatterLineOutOfRange(t *testing.T) {
	tf := NewTextFormatter(WithSources(map[string][]byte{"record.csv": []byte(recordCSV)}))
	err := record.NewFieldError(record.Position{Filename: "record.csv", Line: 40}, record.MissingField, "date", "", nil)
	assert.Equal(t, "record.csv:40: missing field in date; record skipped", tf.Format(err))
}

func TestTextFormatterPlainError(t *testing.T) {
	assert.Equal(t, "boom", NewTextFormatter().Format(stderrors.New("boom")))
}

func TestTextFormatterHeaderError(t *testing.T) {
	err := &parser.HeaderError{
		Pos:     record.Position{Filename: "balance.csv", Line: 1},
		Schema:  "snapshots",
		Missing: []parser.Field{parser.FieldAccount},
	}
	tf := NewTextFormatter(WithSources(map[string][]byte{"balance.csv": []byte("日付,金額\n")}))
	want := "balance.csv: snapshots header is missing required columns: account\n\n" +
		"    1 | 日付,金額"
	assert.Equal(t, want, tf.Format(err))
}

type multiError []error

func (m multiError) Error() string   { return "many" }
func (m multiError) Unwrap() []error { return m }

func TestFormatAllFlattens(t *testing.T) {
	tf := NewTextFormatter()
	errs := []error{multiError{stderrors.New("a"), stderrors.New("b")}, stderrors.New("c")}
	assert.Equal(t, "a\n\nb\n\nc", tf.FormatAll(errs))
	assert.Equal(t, "", tf.FormatAll(nil))
}

func TestJSONFormatter(t *testing.T) {
	jf := NewJSONFormatter()

	got := jf.FormatAllToSlice([]error{amountError(), stderrors.New("plain")})
	assert.Equal(t, []ErrorJSON{
		{
			Type:     "field",
			Message:  `record.csv:3:19: malformed amount in amount "abc"; record skipped`,
			Position: &PositionJSON{Filename: "record.csv", Line: 3, Column: 19},
			Details:  map[string]string{"problem": "malformed amount", "field": "amount", "value": "abc"},
		},
		{
			Type:    "*errors.errorString",
			Message: "plain",
		},
	}, got)

	var decoded map[string]any
	assert.NoError(t, json.Unmarshal([]byte(jf.Format(amountError())), &decoded))
	assert.Equal(t, "field", decoded["type"])

	var all []ErrorJSON
	assert.NoError(t, json.Unmarshal([]byte(jf.FormatAll(nil)), &all))
	assert.Equal(t, 0, len(all))
}
