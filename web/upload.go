package web

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/tokuotsu/kakei2grafana/logger"
)

// maxUploadSize bounds the multipart body held in memory; larger parts spill
// to temporary files.
const maxUploadSize = 32 << 20

// UploadResponse is the JSON response structure for upload and rebuild.
type UploadResponse struct {
	Files       []string `json:"files,omitempty"`
	Run         string   `json:"run,omitempty"`
	Diagnostics int      `json:"diagnostics"`
	Error       string   `json:"error,omitempty"`
}

// handleUpload handles POST requests to /api/upload.
//
// The multipart field "files" carries one or more CSV exports. Each file is
// written under its base name into the data directory, staged as
// "<name>.<uuid>.tmp" and renamed so a rebuild never sees half a file. A
// rebuild follows once every file is in place.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		http.Error(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		http.Error(w, `no files in field "files"`, http.StatusBadRequest)
		return
	}

	names := make([]string, len(headers))
	for i, fh := range headers {
		name, err := uploadName(fh.Filename)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		names[i] = name
	}

	log := logger.FromContext(r.Context())
	for i, fh := range headers {
		if err := s.stageFile(fh, names[i]); err != nil {
			log.Error().Err(err).Str("file", names[i]).Msg("upload failed")
			http.Error(w, "failed to store "+names[i], http.StatusInternalServerError)
			return
		}
		log.Info().Str("file", names[i]).Int64("size", fh.Size).Msg("file uploaded")
	}

	s.respondRebuild(w, r, names)
}

// handleRebuild handles POST requests to /api/rebuild after exports changed on
// disk by other means.
func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	s.respondRebuild(w, r, nil)
}

func (s *Server) respondRebuild(w http.ResponseWriter, r *http.Request, files []string) {
	// The rebuild outlives a client that disconnects early.
	ctx := context.WithoutCancel(r.Context())

	response := &UploadResponse{Files: files}
	if err := s.Rebuild(ctx); err != nil {
		response.Error = err.Error()
		writeJSONStatus(w, http.StatusUnprocessableEntity, response)
		return
	}

	st := s.current()
	response.Run = st.run.String()
	response.Diagnostics = len(st.diagnostics())
	writeJSONResponse(w, response)
}

// uploadName validates a client-supplied file name and returns the base name
// the file is stored under.
func uploadName(filename string) (string, error) {
	name := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(filename, `\`, "/")))
	if name == "/" || name == "." || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid file name %q", filename)
	}
	if !strings.EqualFold(filepath.Ext(name), ".csv") {
		return "", fmt.Errorf("only .csv files are accepted: %q", filename)
	}
	return name, nil
}

func (s *Server) stageFile(fh *multipart.FileHeader, name string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	_, err = s.stage(src, name)
	return err
}

// stage writes src to name in the data directory through a uniquely named
// temporary file and returns the number of bytes written.
func (s *Server) stage(src io.Reader, name string) (n int64, err error) {
	target := filepath.Join(s.dataDir, name)
	tmp := fmt.Sprintf("%s.%s.tmp", target, uuid.NewString())

	dst, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	if n, err = io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return n, err
	}
	if err = dst.Close(); err != nil {
		return n, err
	}
	return n, os.Rename(tmp, target)
}
