package flow

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	apperrors "github.com/goliatone/go-errors"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

const ErrCodeDocumentInvalid = "DOCUMENT_INVALID"

//go:embed schema/automations.schema.json
var schemaBytes []byte

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func loadSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaBytes))
		if schemaErr != nil {
			schemaErr = apperrors.Wrap(schemaErr, apperrors.CategoryHandler, "compile definitions schema")
		}
	})
	return schema, schemaErr
}

// ParseDocument parses a YAML or JSON definitions document, validating it
// against the embedded schema first.
func ParseDocument(data []byte) (Document, error) {
	var doc Document
	if err := ValidateDocument(data); err != nil {
		return doc, err
	}
	// yaml handles JSON too, so a single attempt is fine
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, invalidDocument("decode definitions", err)
	}
	return doc, doc.Validate()
}

// LoadDocument reads and parses the definitions file at path.
func LoadDocument(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, apperrors.Wrap(err, apperrors.CategoryBadInput, fmt.Sprintf("read definitions %s", path)).
			WithTextCode(ErrCodeDocumentInvalid)
	}
	return ParseDocument(data)
}

// ValidateDocument checks data against the definitions schema.
func ValidateDocument(data []byte) error {
	s, err := loadSchema()
	if err != nil {
		return err
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return invalidDocument("parse definitions", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}

	result, err := s.Validate(gojsonschema.NewGoLoader(raw))
	if err != nil {
		return invalidDocument("validate definitions", err)
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "(root)" || field == "" {
			field = desc.Context().String()
		}
		problems = append(problems, fmt.Sprintf("%s: %s", field, desc.Description()))
	}
	return apperrors.New("definitions failed schema validation: "+strings.Join(problems, "; "), apperrors.CategoryValidation).
		WithTextCode(ErrCodeDocumentInvalid).
		WithMetadata(map[string]any{"problems": problems})
}

func invalidDocument(msg string, err error) error {
	return apperrors.Wrap(err, apperrors.CategoryBadInput, msg).WithTextCode(ErrCodeDocumentInvalid)
}
