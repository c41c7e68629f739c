package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/rpattn/recordport/internal/auth"
	"github.com/rpattn/recordport/internal/domain"
	"github.com/rpattn/recordport/internal/repository"
)

var validFieldTypes = map[domain.FieldType]struct{}{
	domain.FieldTypeString:         {},
	domain.FieldTypeInteger:        {},
	domain.FieldTypeFloat:          {},
	domain.FieldTypeBoolean:        {},
	domain.FieldTypeTimestamp:      {},
	domain.FieldTypeJSON:           {},
	domain.FieldTypeRecordRef:      {},
	domain.FieldTypeRecordRefArray: {},
}

// Handler exposes record schema management as HTTP endpoints.
type Handler struct {
	schemas repository.SchemaRepository
	orgs    repository.OrganizationRepository
}

// NewHTTPHandler wires the schema management handler.
func NewHTTPHandler(schemas repository.SchemaRepository, orgs repository.OrganizationRepository) http.Handler {
	return &Handler{schemas: schemas, orgs: orgs}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/organizations"):
		h.handleCreateOrganization(w, r)
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/organizations"):
		h.handleListOrganizations(w, r)
	case r.Method == http.MethodPost:
		h.handleCreate(w, r)
	case r.Method == http.MethodGet:
		h.handleList(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type createSchemaPayload struct {
	OrganizationID    string                    `json:"organizationId"`
	Name              string                    `json:"name"`
	Description       string                    `json:"description"`
	Fields            []domain.FieldDefinition  `json:"fields"`
	UniqueTogether    []string                  `json:"uniqueTogether"`
	UniqueConstraints []domain.UniqueConstraint `json:"uniqueConstraints"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var payload createSchemaPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}

	orgID, err := uuid.Parse(strings.TrimSpace(payload.OrganizationID))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid organizationId: %v", err), http.StatusBadRequest)
		return
	}
	if err := auth.EnforceOrganizationScope(r.Context(), orgID); err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	name := strings.TrimSpace(payload.Name)
	if name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	if err := validateFields(payload.Fields); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	exists, err := h.schemas.Exists(r.Context(), orgID, name)
	if err != nil {
		http.Error(w, fmt.Sprintf("check schema: %v", err), http.StatusInternalServerError)
		return
	}
	if exists {
		http.Error(w, fmt.Sprintf("schema %q already exists", name), http.StatusConflict)
		return
	}

	schema := domain.NewRecordSchema(orgID, name, strings.TrimSpace(payload.Description), payload.Fields)
	if len(payload.UniqueTogether) > 0 {
		schema = schema.WithUniqueTogether(payload.UniqueTogether...)
	}
	for _, constraint := range payload.UniqueConstraints {
		schema = schema.WithUniqueConstraint(constraint)
	}
	if err := validateKeyFields(schema); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	created, err := h.schemas.Create(r.Context(), schema)
	if err != nil {
		http.Error(w, fmt.Sprintf("create schema: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	orgID, err := uuid.Parse(strings.TrimSpace(r.URL.Query().Get("organizationId")))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid organizationId: %v", err), http.StatusBadRequest)
		return
	}
	if err := auth.EnforceOrganizationScope(r.Context(), orgID); err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	if name := strings.TrimSpace(r.URL.Query().Get("name")); name != "" {
		schema, err := h.schemas.GetByName(r.Context(), orgID, name)
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "schema not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, fmt.Sprintf("get schema: %v", err), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, schema)
		return
	}

	schemas, err := h.schemas.List(r.Context(), orgID)
	if err != nil {
		http.Error(w, fmt.Sprintf("list schemas: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, schemas)
}

type createOrganizationPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *Handler) handleCreateOrganization(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var payload createOrganizationPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}
	name := strings.TrimSpace(payload.Name)
	if name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	org, err := h.orgs.Create(r.Context(), domain.NewOrganization(name, strings.TrimSpace(payload.Description)))
	if err != nil {
		http.Error(w, fmt.Sprintf("create organization: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, org)
}

func (h *Handler) handleListOrganizations(w http.ResponseWriter, r *http.Request) {
	orgs, err := h.orgs.List(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("list organizations: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, orgs)
}

func validateFields(fields []domain.FieldDefinition) error {
	if len(fields) == 0 {
		return errors.New("at least one field is required")
	}
	seen := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		name := strings.TrimSpace(field.Name)
		if name == "" {
			return errors.New("field name is required")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate field %q", name)
		}
		seen[name] = struct{}{}
		if _, ok := validFieldTypes[field.Type]; !ok {
			return fmt.Errorf("field %q has unknown type %q", name, field.Type)
		}
		if field.Pattern != "" {
			if _, err := regexp.Compile(field.Pattern); err != nil {
				return fmt.Errorf("field %q has invalid pattern: %v", name, err)
			}
		}
	}
	return nil
}

// validateKeyFields checks that every uniqueness declaration only names
// declared fields.
func validateKeyFields(schema domain.RecordSchema) error {
	check := func(fields []string, where string) error {
		for _, name := range fields {
			if _, ok := schema.Field(name); !ok {
				return fmt.Errorf("%s names undeclared field %q", where, name)
			}
		}
		return nil
	}
	if err := check(schema.UniqueTogether, "uniqueTogether"); err != nil {
		return err
	}
	for _, constraint := range schema.UniqueConstraints {
		if err := check(constraint.Fields, fmt.Sprintf("unique constraint %q", constraint.Name)); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
