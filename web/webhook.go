package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tokuotsu/kakei2grafana/logger"
)

// DefaultDriveDownloadURL is the Google Drive endpoint shared files are
// fetched from; the file id is added as the "id" query parameter.
const DefaultDriveDownloadURL = "https://drive.google.com/uc?export=download"

// maxNotificationSize bounds the webhook JSON body.
const maxNotificationSize = 1 << 20

// DriveFile is one new export announced by the Drive folder script.
type DriveFile struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	ID   string `json:"id"`
}

// DriveNotification is the webhook payload: {"files": [{"name", "url", "id"}]}.
type DriveNotification struct {
	Files []DriveFile `json:"files"`
}

func (s *Server) httpClient() *http.Client {
	if s.HTTPClient != nil {
		return s.HTTPClient
	}
	return &http.Client{Timeout: time.Minute}
}

func (s *Server) driveURL(id string) (string, error) {
	base := s.DriveDownloadURL
	if base == "" {
		base = DefaultDriveDownloadURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid download url: %w", err)
	}
	q := u.Query()
	q.Set("id", id)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// handleDrivePing answers GET /drive-webhook so the endpoint can be checked
// from a browser.
func (s *Server) handleDrivePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("OK"))
}

// handleDriveWebhook handles POST requests to /drive-webhook.
//
// Every announced file is downloaded from Drive by id and staged into the data
// directory under its base name like an upload. Names are validated before
// anything is fetched; a failed download aborts the request before the
// rebuild so the remaining files stay as they were.
func (s *Server) handleDriveWebhook(w http.ResponseWriter, r *http.Request) {
	var notification DriveNotification
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxNotificationSize)).Decode(&notification); err != nil {
		http.Error(w, "invalid notification: "+err.Error(), http.StatusBadRequest)
		return
	}

	names := make([]string, len(notification.Files))
	for i, f := range notification.Files {
		name, err := uploadName(f.Name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if f.ID == "" {
			http.Error(w, fmt.Sprintf("missing file id for %q", f.Name), http.StatusBadRequest)
			return
		}
		names[i] = name
	}

	log := logger.FromContext(r.Context())
	for i, f := range notification.Files {
		n, err := s.download(r.Context(), f.ID, names[i])
		if err != nil {
			log.Error().Err(err).Str("file", names[i]).Str("id", f.ID).Msg("download failed")
			http.Error(w, "failed to download "+names[i], http.StatusBadGateway)
			return
		}
		log.Info().Str("file", names[i]).Str("id", f.ID).Int64("size", n).Msg("file downloaded")
	}

	s.respondRebuild(w, r, names)
}

// download fetches the Drive file id and stages it as name.
func (s *Server) download(ctx context.Context, id, name string) (int64, error) {
	target, err := s.driveURL(id)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, err
	}
	resp, err := s.httpClient().Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return s.stage(resp.Body, name)
}
