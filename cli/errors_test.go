package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/tokuotsu/kakei2grafana/record"
)

func TestErrorRendererWithSourceContext(t *testing.T) {
	source := "日付,収入/支出,金額,銀行口座/カード等\n2024/01/02,支出,500,現金\n2024/01/02,支出,oops,現金\n"
	err := record.NewFieldError(
		record.Position{Filename: "record.csv", Line: 3, Column: 19},
		record.MalformedAmount, "amount", "oops", nil,
	)

	output := NewErrorRenderer(map[string][]byte{"record.csv": []byte(source)}).Render(err)

	assert.Contains(t, output, "record.csv:3:19")
	assert.Contains(t, output, "malformed amount")
	assert.Contains(t, output, "    2 | 2024/01/02,支出,500,現金")
	assert.Contains(t, output, "    3 | 2024/01/02,支出,oops,現金")

	lines := strings.Split(output, "\n")
	caret := lines[len(lines)-1]
	assert.True(t, strings.HasSuffix(caret, "^"), caret)
}

func TestErrorRendererWithoutSource(t *testing.T) {
	err := record.NewFieldError(
		record.Position{Filename: "balance.csv", Line: 2, Column: 1},
		record.MalformedDate, "date", "yesterday", nil,
	)
	output := NewErrorRenderer(nil).Render(err)
	assert.Equal(t, err.Error(), output)

	plain := errors.New("meta.json: invalid meta config")
	assert.Equal(t, plain.Error(), NewErrorRenderer(nil).Render(plain))
}

func TestErrorRendererRenderAll(t *testing.T) {
	errs := []error{errors.New("first"), errors.Join(errors.New("second"), errors.New("third"))}
	output := NewErrorRenderer(nil).RenderAll(errs)
	assert.Equal(t, "first\n\nsecond\n\nthird", output)

	assert.Equal(t, "", NewErrorRenderer(nil).RenderAll(nil))
}

func TestReportDiagnostics(t *testing.T) {
	var buf bytes.Buffer
	assert.Equal(t, 0, reportDiagnostics(&buf, nil, nil, nil))
	assert.Equal(t, "", buf.String())

	n := reportDiagnostics(&buf, nil, []error{errors.New("a")}, []error{errors.New("b")})
	assert.Equal(t, 2, n)
	assert.Contains(t, buf.String(), "a\n\nb")
	assert.Contains(t, buf.String(), "2 record(s) skipped")
}
