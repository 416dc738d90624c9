package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"

	"github.com/tokuotsu/kakei2grafana/ledger"
	"github.com/tokuotsu/kakei2grafana/record"
)

func reconcile(t *testing.T) *ledger.Result {
	t.Helper()
	cfg := ledger.NewConfig()
	cfg.Registry = ledger.Registry{
		{Account: "現金", Column: "cash"},
		{Account: "楽天銀行", Column: "rakuten_bank"},
	}
	batch := ledger.Batch{
		Transactions: []record.Transaction{
			record.NewTransaction(record.MustDate("2024-01-02"), record.Expense, decimal.RequireFromString("500"), "現金"),
		},
		Snapshots: []record.Snapshot{
			record.NewSnapshot(record.MustDate("2024-01-01"), "現金", decimal.RequireFromString("10000")),
		},
	}
	result, err := ledger.New(cfg).Reconcile(context.Background(), batch)
	assert.NoError(t, err)
	return result
}

func find(t *testing.T, c *Collector, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	families, err := c.Registry().Gather()
	assert.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue next
				}
			}
			return m
		}
	}
	return nil
}

func TestObserveRebuild(t *testing.T) {
	c := NewCollector()
	c.ObserveRebuild(20*time.Millisecond, reconcile(t), nil)

	ok := find(t, c, "kakei_rebuilds_total", map[string]string{"status": StatusOK})
	assert.True(t, ok != nil)
	assert.Equal(t, 1.0, ok.GetCounter().GetValue())

	txns := find(t, c, "kakei_records", map[string]string{"kind": "transaction"})
	assert.True(t, txns != nil)
	assert.Equal(t, 1.0, txns.GetGauge().GetValue())

	cash := find(t, c, "kakei_account_balance", map[string]string{"account": "現金"})
	assert.True(t, cash != nil)
	assert.Equal(t, 9500.0, cash.GetGauge().GetValue())

	// No data for the bank, so no balance series either.
	bank := find(t, c, "kakei_account_balance", map[string]string{"account": "楽天銀行"})
	assert.True(t, bank == nil)

	duration := find(t, c, "kakei_rebuild_duration_seconds", nil)
	assert.True(t, duration != nil)
	assert.Equal(t, uint64(1), duration.GetHistogram().GetSampleCount())

	last := find(t, c, "kakei_last_rebuild_timestamp_seconds", nil)
	assert.True(t, last != nil)
	assert.True(t, last.GetGauge().GetValue() > 0)
}

func TestObserveRebuildFailure(t *testing.T) {
	c := NewCollector()
	c.ObserveRebuild(time.Millisecond, nil, errors.New("meta.json: invalid meta config"))

	failed := find(t, c, "kakei_rebuilds_total", map[string]string{"status": StatusFailed})
	assert.True(t, failed != nil)
	assert.Equal(t, 1.0, failed.GetCounter().GetValue())

	last := find(t, c, "kakei_last_rebuild_timestamp_seconds", nil)
	assert.True(t, last != nil)
	assert.Equal(t, 0.0, last.GetGauge().GetValue())
}

func TestObserveDiagnostics(t *testing.T) {
	c := NewCollector()
	pos := record.Position{Filename: "record.csv", Line: 3, Column: 1}
	c.ObserveDiagnostics([]error{
		record.NewFieldError(pos, record.MalformedDate, "date", "2024-13-01", nil),
		record.NewFieldError(pos, record.MalformedDate, "date", "yesterday", nil),
		record.NewFieldError(pos, record.MissingField, "account", "", nil),
		errors.New("something else"),
	})

	date := find(t, c, "kakei_diagnostics_total", map[string]string{"problem": "malformed date"})
	assert.True(t, date != nil)
	assert.Equal(t, 2.0, date.GetCounter().GetValue())

	missing := find(t, c, "kakei_diagnostics_total", map[string]string{"problem": "missing field"})
	assert.True(t, missing != nil)
	assert.Equal(t, 1.0, missing.GetCounter().GetValue())

	other := find(t, c, "kakei_diagnostics_total", map[string]string{"problem": "other"})
	assert.True(t, other != nil)
	assert.Equal(t, 1.0, other.GetCounter().GetValue())
}

func TestHandler(t *testing.T) {
	c := NewCollector()
	c.ObserveRebuild(time.Millisecond, reconcile(t), nil)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	assert.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	assert.NoError(t, err)
	assert.Contains(t, string(body), `kakei_rebuilds_total{status="ok"} 1`)
	assert.Contains(t, string(body), "kakei_account_balance")
}
