package export

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/rpattn/recordport/internal/auth"
)

type Handler struct {
	service *Service
}

// NewHTTPHandler wraps the service with a GET endpoint that streams CSV.
func NewHTTPHandler(service *Service) http.Handler {
	return &Handler{service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

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

	schemaName := strings.TrimSpace(query.Get("schemaName"))
	if schemaName == "" {
		http.Error(w, "schemaName is required", http.StatusBadRequest)
		return
	}

	req := Request{
		OrganizationID: orgID,
		SchemaName:     schemaName,
		IncludeFields:  parseFieldList(query.Get("includeFields")),
		ExcludeFields:  parseFieldList(query.Get("excludeFields")),
		OmitHeader:     query.Get("header") == "false",
	}
	if raw := strings.TrimSpace(query.Get("filters")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Filters); err != nil {
			http.Error(w, fmt.Sprintf("invalid filters: %v", err), http.StatusBadRequest)
			return
		}
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", ExportFileName(schemaName)))

	if _, err := h.service.Write(r.Context(), w, req); err != nil {
		// Headers are already out; all that is left is to cut the stream.
		log.Printf("[export] stream aborted: %v", err)
	}
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
