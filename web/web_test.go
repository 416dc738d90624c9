package web

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"

	"github.com/tokuotsu/kakei2grafana/ledger"
	"github.com/tokuotsu/kakei2grafana/metrics"
)

const testMeta = `{
  "card_settings": {
    "楽天カード": {"closing_day": -1, "payment_offset_months": 1, "payment_day": 27, "withdrawal_account": "楽天銀行"}
  },
  "accounts_ja_en": {"現金": "cash", "楽天銀行": "rakuten_bank", "楽天カード": "rakuten_card"}
}`

const testRecords = "日付,収入/支出,金額,銀行口座/カード等\n" +
	"2024/01/02,支出,500,現金\n" +
	"2024/01/02,支出,oops,現金\n"

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "meta.json"), testMeta)
	writeFile(t, filepath.Join(dir, "record.csv"), testRecords)
	writeFile(t, filepath.Join(dir, "balance.csv"), "日付,資産,金額\n2024/01/01,現金,2000\n")
	return New(8080, dir), dir
}

func serve(t *testing.T, s *Server, method, target string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, body)
		req.Header.Set("Content-Type", contentType)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	s.setupRouter().ServeHTTP(rec, req)
	return rec
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for name, content := range files {
		part, err := mw.CreateFormFile("files", name)
		assert.NoError(t, err)
		_, err = part.Write([]byte(content))
		assert.NoError(t, err)
	}
	assert.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func TestAPIBeforeFirstRebuild(t *testing.T) {
	s, _ := newTestServer(t)

	for _, target := range []string{"/api/timeline", "/api/accounts", "/api/diagnostics"} {
		rec := serve(t, s, http.MethodGet, target, nil, "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, target)
	}

	rec := serve(t, s, http.MethodGet, "/api/status", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var status StatusResponse
	assert.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, "", status.Run)
	assert.Equal(t, 0, status.Days)
}

func TestAPITimeline(t *testing.T) {
	s, _ := newTestServer(t)
	assert.NoError(t, s.Rebuild(context.Background()))

	t.Run("Full", func(t *testing.T) {
		rec := serve(t, s, http.MethodGet, "/api/timeline", nil, "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var response TimelineResponse
		assert.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		assert.Equal(t, []string{
			"date",
			"cash_flow", "cash_balance",
			"rakuten_bank_flow", "rakuten_bank_balance",
			"rakuten_card_flow", "rakuten_card_balance",
		}, response.Columns)
		assert.Equal(t, "2024-01-01", response.From.String())
		assert.Equal(t, "2024-01-02", response.To.String())
		assert.Equal(t, 2, len(response.Rows))

		day2 := response.Rows[1]
		assert.Equal(t, "2024-01-02", day2.Date.String())
		assert.Equal(t, "-500", day2.Cells[0].Flow.String())
		assert.Equal(t, "1500", day2.Cells[0].Balance.Decimal.String())
		assert.False(t, day2.Cells[1].Balance.Valid)
	})

	t.Run("Window", func(t *testing.T) {
		rec := serve(t, s, http.MethodGet, "/api/timeline?from=2024-01-02&to=2024-12-31", nil, "")
		assert.Equal(t, http.StatusOK, rec.Code)

		var response TimelineResponse
		assert.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		assert.Equal(t, 1, len(response.Rows))
		assert.Equal(t, "2024-01-02", response.Rows[0].Date.String())
	})

	t.Run("EmptyWindow", func(t *testing.T) {
		rec := serve(t, s, http.MethodGet, "/api/timeline?from=2025-01-01", nil, "")
		assert.Equal(t, http.StatusOK, rec.Code)

		var response TimelineResponse
		assert.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		assert.Equal(t, 0, len(response.Rows))
		assert.True(t, response.From == nil)
	})

	t.Run("InvalidDate", func(t *testing.T) {
		rec := serve(t, s, http.MethodGet, "/api/timeline?from=2024/01/01", nil, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid from format")
	})

	t.Run("ReversedRange", func(t *testing.T) {
		rec := serve(t, s, http.MethodGet, "/api/timeline?from=2024-01-02&to=2024-01-01", nil, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAPIAccounts(t *testing.T) {
	s, dir := newTestServer(t)
	writeFile(t, filepath.Join(dir, "transfer.csv"), "日付,金額,出金,入金,メモ\n2024/01/02,100,PayPay,現金,\n")
	assert.NoError(t, s.Rebuild(context.Background()))

	rec := serve(t, s, http.MethodGet, "/api/accounts", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var response AccountsResponse
	assert.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.Equal(t, 3, len(response.Accounts))

	cash := response.Accounts[0]
	assert.Equal(t, "現金", cash.Name)
	assert.Equal(t, "cash", cash.Column)
	assert.Equal(t, "1600", cash.Balance.Decimal.String())
	assert.Equal(t, "2024-01-02", cash.AsOf.String())

	bank := response.Accounts[1]
	assert.Equal(t, "rakuten_bank", bank.Column)
	assert.False(t, bank.Balance.Valid)
	assert.True(t, bank.AsOf == nil)

	assert.Equal(t, []string{"PayPay"}, response.Unregistered)
}

func TestAPIDiagnostics(t *testing.T) {
	s, dir := newTestServer(t)
	assert.NoError(t, s.Rebuild(context.Background()))

	rec := serve(t, s, http.MethodGet, "/api/diagnostics", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var response DiagnosticsResponse
	assert.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.Equal(t, s.current().run.String(), response.Run)
	assert.Equal(t, 1, len(response.Diagnostics))

	d := response.Diagnostics[0]
	assert.Equal(t, "field", d.Type)
	assert.Equal(t, "malformed amount", d.Details["problem"])
	assert.Equal(t, "oops", d.Details["value"])
	assert.Equal(t, filepath.Join(dir, "record.csv"), d.Position.Filename)
	assert.Equal(t, 3, d.Position.Line)
}

func TestAPIUpload(t *testing.T) {
	t.Run("StoresAndRebuilds", func(t *testing.T) {
		s, dir := newTestServer(t)
		assert.NoError(t, s.Rebuild(context.Background()))
		before := s.current().run

		body, contentType := multipartBody(t, map[string]string{
			"record.csv": "日付,収入/支出,金額,銀行口座/カード等\n2024/01/03,支出,200,現金\n",
		})
		rec := serve(t, s, http.MethodPost, "/api/upload", body, contentType)
		assert.Equal(t, http.StatusOK, rec.Code)

		var response UploadResponse
		assert.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		assert.Equal(t, []string{"record.csv"}, response.Files)
		assert.Equal(t, 0, response.Diagnostics)
		assert.NotEqual(t, before.String(), response.Run)

		data, err := os.ReadFile(filepath.Join(dir, "record.csv"))
		assert.NoError(t, err)
		assert.Contains(t, string(data), "2024/01/03")

		entries, err := os.ReadDir(dir)
		assert.NoError(t, err)
		for _, e := range entries {
			assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), e.Name())
		}

		cash, ok := s.current().result.Timeline.Timeline("現金")
		assert.True(t, ok)
		latest, ok := cash.Latest()
		assert.True(t, ok)
		assert.Equal(t, "1800", latest.Balance.Decimal.String())
	})

	t.Run("StripsDirectories", func(t *testing.T) {
		s, dir := newTestServer(t)
		body, contentType := multipartBody(t, map[string]string{
			"../../balance.csv": "日付,資産,金額\n2024/01/01,現金,3000\n",
		})
		rec := serve(t, s, http.MethodPost, "/api/upload", body, contentType)
		assert.Equal(t, http.StatusOK, rec.Code)

		data, err := os.ReadFile(filepath.Join(dir, "balance.csv"))
		assert.NoError(t, err)
		assert.Contains(t, string(data), "3000")
	})

	t.Run("RejectsNonCSV", func(t *testing.T) {
		s, dir := newTestServer(t)
		body, contentType := multipartBody(t, map[string]string{"notes.txt": "hello"})
		rec := serve(t, s, http.MethodPost, "/api/upload", body, contentType)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "only .csv files")

		_, err := os.Stat(filepath.Join(dir, "notes.txt"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("RequiresFiles", func(t *testing.T) {
		s, _ := newTestServer(t)
		body, contentType := multipartBody(t, nil)
		rec := serve(t, s, http.MethodPost, "/api/upload", body, contentType)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("ReadOnly", func(t *testing.T) {
		s, _ := newTestServer(t)
		s.ReadOnly = true
		body, contentType := multipartBody(t, map[string]string{"record.csv": testRecords})
		rec := serve(t, s, http.MethodPost, "/api/upload", body, contentType)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestUploadName(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "record.csv", want: "record.csv"},
		{in: "RECORD.CSV", want: "RECORD.CSV"},
		{in: "../../etc/record.csv", want: "record.csv"},
		{in: `C:\exports\record.csv`, want: "record.csv"},
		{in: "record.xlsx", wantErr: true},
		{in: ".csv", wantErr: true},
		{in: "", wantErr: true},
		{in: "/", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := uploadName(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type fakePublisher struct {
	mu     sync.Mutex
	calls  int
	err    error
	latest *ledger.Result
}

func (p *fakePublisher) Publish(ctx context.Context, result *ledger.Result) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.latest = result
	return p.err
}

func TestAPIRebuild(t *testing.T) {
	t.Run("Publishes", func(t *testing.T) {
		s, _ := newTestServer(t)
		publisher := &fakePublisher{}
		s.Publisher = publisher

		rec := serve(t, s, http.MethodPost, "/api/rebuild", nil, "")
		assert.Equal(t, http.StatusOK, rec.Code)

		var response UploadResponse
		assert.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		assert.Equal(t, 1, response.Diagnostics)
		assert.Equal(t, s.current().run.String(), response.Run)

		assert.Equal(t, 1, publisher.calls)
		assert.True(t, publisher.latest == s.current().result)
	})

	t.Run("PublishFailure", func(t *testing.T) {
		s, _ := newTestServer(t)
		s.Publisher = &fakePublisher{err: errors.New("connection refused")}

		rec := serve(t, s, http.MethodPost, "/api/rebuild", nil, "")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "failed to publish: connection refused")
		assert.True(t, s.current() != nil)
	})

	t.Run("PublishFailureBroadcastsReload", func(t *testing.T) {
		s, _ := newTestServer(t)
		s.Publisher = &fakePublisher{err: errors.New("connection refused")}

		events := make(chan string, 1)
		s.sseClients[events] = struct{}{}

		err := s.Rebuild(context.Background())
		assert.True(t, errors.Is(err, ErrPublish))
		assert.Equal(t, "reload", <-events)
	})

	t.Run("KeepsPreviousStateOnFailure", func(t *testing.T) {
		s, dir := newTestServer(t)
		assert.NoError(t, s.Rebuild(context.Background()))
		before := s.current()

		writeFile(t, filepath.Join(dir, "meta.json"), `{"accounts_ja_en": []}`)
		rec := serve(t, s, http.MethodPost, "/api/rebuild", nil, "")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "meta.json")
		assert.True(t, s.current() == before)
	})

	t.Run("AllowedWhenReadOnly", func(t *testing.T) {
		s, _ := newTestServer(t)
		s.ReadOnly = true
		rec := serve(t, s, http.MethodPost, "/api/rebuild", nil, "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestStart(t *testing.T) {
	t.Run("ServesDespitePublishFailure", func(t *testing.T) {
		s, _ := newTestServer(t)
		s.Port = 0
		s.Publisher = &fakePublisher{err: errors.New("connection refused")}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		done := make(chan error, 1)
		go func() { done <- s.Start(ctx) }()

		deadline := time.Now().Add(5 * time.Second)
		for s.current() == nil && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
		assert.True(t, s.current() != nil)

		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("server did not stop")
		}
	})

	t.Run("FailsWithoutWorkspace", func(t *testing.T) {
		s := New(0, t.TempDir())

		err := s.Start(context.Background())
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load workspace")
	})
}

func TestAPIStatus(t *testing.T) {
	s, dir := newTestServer(t)
	s.Version = "v1.2.3"
	assert.NoError(t, s.Rebuild(context.Background()))

	rec := serve(t, s, http.MethodGet, "/api/status", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var status StatusResponse
	assert.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, "v1.2.3", status.Version)
	assert.Equal(t, s.current().run.String(), status.Run)
	assert.Equal(t, 2, status.Days)
	assert.Equal(t, 1, status.Diagnostics)
	assert.Equal(t, []string{filepath.Join(dir, "record.csv"), filepath.Join(dir, "balance.csv")}, status.Files)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	rec := serve(t, s, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	s.Metrics = metrics.NewCollector()
	assert.NoError(t, s.Rebuild(context.Background()))

	rec = serve(t, s, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `kakei_rebuilds_total{status="ok"} 1`)
	assert.Contains(t, rec.Body.String(), `kakei_diagnostics_total{problem="malformed amount"} 1`)
}

func TestSSEReload(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.setupRouter())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	assert.NoError(t, err)
	resp, err := srv.Client().Do(req)
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	assert.NoError(t, err)
	assert.Equal(t, "data: connected\n", line)
	_, _ = reader.ReadString('\n')

	assert.NoError(t, s.Rebuild(context.Background()))

	line, err = reader.ReadString('\n')
	assert.NoError(t, err)
	assert.Equal(t, "data: reload\n", line)
}

func TestWatcherRebuildsOnChange(t *testing.T) {
	s, dir := newTestServer(t)
	assert.NoError(t, s.Rebuild(context.Background()))
	before := s.current()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	assert.NoError(t, s.startWatcher(ctx))

	// Files outside the inputs are ignored.
	writeFile(t, filepath.Join(dir, "notes.csv"), "x\n")
	writeFile(t, filepath.Join(dir, "record.csv"), "日付,収入/支出,金額,銀行口座/カード等\n2024/01/02,支出,700,現金\n")

	deadline := time.Now().Add(5 * time.Second)
	for s.current() == before && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	assert.True(t, s.current() != before, "watcher did not rebuild")

	cash, ok := s.current().result.Timeline.Timeline("現金")
	assert.True(t, ok)
	latest, _ := cash.Latest()
	assert.Equal(t, "1300", latest.Balance.Decimal.String())
}
