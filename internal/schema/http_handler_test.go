package schema

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/rpattn/recordport/internal/domain"
	"github.com/rpattn/recordport/internal/repository"
)

type stubSchemaRepo struct {
	schemas []domain.RecordSchema
}

func (s *stubSchemaRepo) Create(_ context.Context, schema domain.RecordSchema) (domain.RecordSchema, error) {
	s.schemas = append(s.schemas, schema)
	return schema, nil
}

func (s *stubSchemaRepo) GetByID(_ context.Context, id uuid.UUID) (domain.RecordSchema, error) {
	for _, schema := range s.schemas {
		if schema.ID == id {
			return schema, nil
		}
	}
	return domain.RecordSchema{}, repository.ErrNotFound
}

func (s *stubSchemaRepo) GetByName(_ context.Context, organizationID uuid.UUID, name string) (domain.RecordSchema, error) {
	for _, schema := range s.schemas {
		if schema.OrganizationID == organizationID && schema.Name == name {
			return schema, nil
		}
	}
	return domain.RecordSchema{}, repository.ErrNotFound
}

func (s *stubSchemaRepo) Exists(ctx context.Context, organizationID uuid.UUID, name string) (bool, error) {
	_, err := s.GetByName(ctx, organizationID, name)
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (s *stubSchemaRepo) List(_ context.Context, organizationID uuid.UUID) ([]domain.RecordSchema, error) {
	out := []domain.RecordSchema{}
	for _, schema := range s.schemas {
		if schema.OrganizationID == organizationID {
			out = append(out, schema)
		}
	}
	return out, nil
}

type stubOrgRepo struct {
	orgs []domain.Organization
}

func (s *stubOrgRepo) Create(_ context.Context, org domain.Organization) (domain.Organization, error) {
	s.orgs = append(s.orgs, org)
	return org, nil
}

func (s *stubOrgRepo) GetByID(_ context.Context, id uuid.UUID) (domain.Organization, error) {
	for _, org := range s.orgs {
		if org.ID == id {
			return org, nil
		}
	}
	return domain.Organization{}, repository.ErrNotFound
}

func (s *stubOrgRepo) GetByName(_ context.Context, name string) (domain.Organization, error) {
	for _, org := range s.orgs {
		if org.Name == name {
			return org, nil
		}
	}
	return domain.Organization{}, repository.ErrNotFound
}

func (s *stubOrgRepo) List(_ context.Context) ([]domain.Organization, error) {
	return s.orgs, nil
}

func TestHandlerCreateSchema(t *testing.T) {
	orgID := uuid.New()
	repo := &stubSchemaRepo{}
	handler := NewHTTPHandler(repo, &stubOrgRepo{})

	body := `{
		"organizationId": "` + orgID.String() + `",
		"name": "Person",
		"fields": [
			{"name": "email", "type": "string", "required": true},
			{"name": "name", "type": "string"}
		],
		"uniqueTogether": ["email"]
	}`
	req := httptest.NewRequest(http.MethodPost, "/schemas", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(repo.schemas) != 1 {
		t.Fatalf("expected schema persisted")
	}
	var created domain.RecordSchema
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.Name != "Person" || len(created.UniqueTogether) != 1 {
		t.Fatalf("unexpected response: %+v", created)
	}
}

func TestHandlerCreateSchemaRejectsBadInput(t *testing.T) {
	orgID := uuid.New()
	handler := NewHTTPHandler(&stubSchemaRepo{}, &stubOrgRepo{})

	cases := map[string]string{
		"unknown type": `{"organizationId": "` + orgID.String() + `", "name": "X",
			"fields": [{"name": "a", "type": "decimal"}]}`,
		"duplicate field": `{"organizationId": "` + orgID.String() + `", "name": "X",
			"fields": [{"name": "a", "type": "string"}, {"name": "a", "type": "string"}]}`,
		"bad pattern": `{"organizationId": "` + orgID.String() + `", "name": "X",
			"fields": [{"name": "a", "type": "string", "pattern": "(["}]}`,
		"key names unknown field": `{"organizationId": "` + orgID.String() + `", "name": "X",
			"fields": [{"name": "a", "type": "string"}], "uniqueTogether": ["b"]}`,
	}
	for name, body := range cases {
		req := httptest.NewRequest(http.MethodPost, "/schemas", strings.NewReader(body))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d: %s", name, rec.Code, rec.Body.String())
		}
	}
}

func TestHandlerCreateSchemaConflict(t *testing.T) {
	orgID := uuid.New()
	repo := &stubSchemaRepo{
		schemas: []domain.RecordSchema{
			domain.NewRecordSchema(orgID, "Person", "", []domain.FieldDefinition{{Name: "a", Type: domain.FieldTypeString}}),
		},
	}
	handler := NewHTTPHandler(repo, &stubOrgRepo{})

	body := `{"organizationId": "` + orgID.String() + `", "name": "Person",
		"fields": [{"name": "a", "type": "string"}]}`
	req := httptest.NewRequest(http.MethodPost, "/schemas", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestHandlerListSchemasAndOrganizations(t *testing.T) {
	orgID := uuid.New()
	repo := &stubSchemaRepo{
		schemas: []domain.RecordSchema{
			domain.NewRecordSchema(orgID, "Person", "", []domain.FieldDefinition{{Name: "a", Type: domain.FieldTypeString}}),
		},
	}
	orgs := &stubOrgRepo{orgs: []domain.Organization{domain.NewOrganization("acme", "")}}
	handler := NewHTTPHandler(repo, orgs)

	req := httptest.NewRequest(http.MethodGet, "/schemas?organizationId="+orgID.String(), nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var schemas []domain.RecordSchema
	if err := json.Unmarshal(rec.Body.Bytes(), &schemas); err != nil {
		t.Fatalf("decode schemas: %v", err)
	}
	if len(schemas) != 1 {
		t.Fatalf("expected 1 schema, got %d", len(schemas))
	}

	req = httptest.NewRequest(http.MethodGet, "/schemas/organizations", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var listed []domain.Organization
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode organizations: %v", err)
	}
	if len(listed) != 1 || listed[0].Name != "acme" {
		t.Fatalf("unexpected organizations: %+v", listed)
	}
}
