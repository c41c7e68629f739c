package importer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/rpattn/recordport/internal/auth"
	"github.com/rpattn/recordport/internal/domain"
	"github.com/rpattn/recordport/internal/repository"
)

// Handler exposes import runs and their row error logs as HTTP endpoints.
type Handler struct {
	driver   *Driver
	schemas  repository.SchemaRepository
	logs     repository.ImportLogRepository
	defaults Options
}

// NewHTTPHandler wraps the driver with a POST endpoint and a GET /logs
// endpoint. defaults seed each run's options before per-request overrides
// apply.
func NewHTTPHandler(driver *Driver, schemas repository.SchemaRepository, logs repository.ImportLogRepository, defaults Options) http.Handler {
	return &Handler{driver: driver, schemas: schemas, logs: logs, defaults: defaults}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost:
		h.handleRun(w, r)
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/logs"):
		h.handleListLogs(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, fmt.Sprintf("invalid form data: %v", err), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, fmt.Sprintf("file required: %v", err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	orgIDRaw := strings.TrimSpace(r.FormValue("organizationId"))
	orgID, err := uuid.Parse(orgIDRaw)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid organization id: %v", err), http.StatusBadRequest)
		return
	}
	if err := auth.EnforceOrganizationScope(r.Context(), orgID); err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	schemaName := strings.TrimSpace(r.FormValue("schemaName"))
	if schemaName == "" {
		http.Error(w, "schemaName is required", http.StatusBadRequest)
		return
	}

	schema, err := h.schemas.GetByName(r.Context(), orgID, schemaName)
	if err != nil {
		http.Error(w, fmt.Sprintf("schema not found: %v", err), http.StatusNotFound)
		return
	}

	opts, err := h.parseOptions(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sourcePath, err := spoolUpload(file, header.Filename)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to store upload: %v", err), http.StatusInternalServerError)
		return
	}

	report, err := h.driver.Run(r.Context(), RunRequest{
		Schema:       schema,
		SourcePath:   sourcePath,
		FileName:     header.Filename,
		RemoveSource: true,
		Options:      opts,
	})
	if err != nil {
		if errors.Is(err, ErrUnsupportedFormat) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		// Fatal mid-run failure: earlier chunks stay committed, so the
		// caller still gets the counts for what landed.
		writeJSON(w, http.StatusInternalServerError, failedRunResponse{
			Error:  err.Error(),
			Report: report,
		})
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// failedRunResponse carries the partial report alongside the fatal error.
type failedRunResponse struct {
	Error  string              `json:"error"`
	Report domain.ImportReport `json:"report"`
}

func (h *Handler) handleListLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	orgID, err := uuid.Parse(strings.TrimSpace(query.Get("organizationId")))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid organizationId: %v", err), http.StatusBadRequest)
		return
	}
	if err := auth.EnforceOrganizationScope(r.Context(), orgID); err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	limit := 200
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	offset := 0
	if raw := strings.TrimSpace(query.Get("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "offset must be zero or positive", http.StatusBadRequest)
			return
		}
		offset = parsed
	}

	entries, err := h.logs.List(r.Context(), orgID,
		strings.TrimSpace(query.Get("schemaName")),
		strings.TrimSpace(query.Get("fileName")),
		limit, offset)
	if err != nil {
		http.Error(w, fmt.Sprintf("list logs: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// parseOptions overlays per-request form values on the configured defaults.
func (h *Handler) parseOptions(r *http.Request) (Options, error) {
	opts := h.defaults

	if raw := strings.TrimSpace(r.FormValue("chunkSize")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return opts, fmt.Errorf("chunkSize must be a positive integer")
		}
		opts.ChunkSize = parsed
	}
	if raw := strings.TrimSpace(r.FormValue("maxErrorRows")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return opts, fmt.Errorf("maxErrorRows must be a positive integer")
		}
		opts.MaxErrorRows = parsed
	}
	if raw := strings.TrimSpace(r.FormValue("skipExisting")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return opts, fmt.Errorf("skipExisting must be a boolean")
		}
		opts.SkipExisting = parsed
	}
	if raw := r.FormValue("dedupPriority"); strings.TrimSpace(raw) != "" {
		priority, err := ParseDedupPriority(raw)
		if err != nil {
			return opts, err
		}
		opts.DedupPriority = priority
	}
	if list := parseFieldList(r.FormValue("uniqueKey")); len(list) > 0 {
		opts.UniqueKey = list
	}
	if list := parseFieldList(r.FormValue("includeFields")); len(list) > 0 {
		opts.IncludeFields = list
	}
	if list := parseFieldList(r.FormValue("excludeFields")); len(list) > 0 {
		opts.ExcludeFields = list
	}
	if raw := strings.TrimSpace(r.FormValue("encoding")); raw != "" {
		opts.Encoding = raw
	}

	return opts, nil
}

func parseFieldList(raw string) []string {
	parts := strings.Split(raw, ",")
	fields := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			fields = append(fields, trimmed)
		}
	}
	return fields
}

// spoolUpload copies the upload to a temp file so the run can stream it in
// chunks. The extension is preserved because it selects the format.
func spoolUpload(src io.Reader, fileName string) (string, error) {
	ext := filepath.Ext(fileName)
	tmp, err := os.CreateTemp("", "import-*"+ext)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, src); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
