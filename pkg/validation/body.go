package validation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/platinummonkey/tenantguard/pkg/contextkeys"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/sanitize"
)

// DefaultMaxBytes bounds request bodies when Config.MaxBytes is unset.
const DefaultMaxBytes int64 = 1 << 20

// Config holds body validation settings.
type Config struct {
	// MaxBytes is the largest accepted body.
	MaxBytes int64
	// ContentTypes lists accepted media types. Defaults to application/json.
	ContentTypes []string
	// Schema, when set, must accept the decoded body.
	Schema *jsonschema.Schema
	// Sanitize HTML-escapes every string in the decoded body.
	Sanitize bool
	// RawFields are exempt from sanitizing, e.g. "passwordHash".
	RawFields []string
}

// BodyValidator checks a request body before it reaches business logic.
type BodyValidator struct {
	config Config
	types  map[string]bool
}

// NewBodyValidator creates a validator.
func NewBodyValidator(config Config) *BodyValidator {
	if config.MaxBytes <= 0 {
		config.MaxBytes = DefaultMaxBytes
	}
	if len(config.ContentTypes) == 0 {
		config.ContentTypes = []string{"application/json"}
	}
	types := make(map[string]bool, len(config.ContentTypes))
	for _, ct := range config.ContentTypes {
		types[strings.ToLower(ct)] = true
	}
	return &BodyValidator{config: config, types: types}
}

// Validate reads, bounds, decodes and schema-checks the body of r. It returns
// the decoded value (nil for bodiless requests) and leaves r.Body readable
// again with the original bytes.
func (v *BodyValidator) Validate(r *http.Request) (any, error) {
	if bodiless(r) {
		return nil, nil
	}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !v.types[strings.ToLower(mediaType)] {
		return nil, httputil.ValidationError(http.StatusUnsupportedMediaType, httputil.CodeUnsupportedMedia,
			"Unsupported content type")
	}

	if r.ContentLength > v.config.MaxBytes {
		return nil, tooLarge(v.config.MaxBytes)
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, v.config.MaxBytes+1))
	r.Body.Close()
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, tooLarge(v.config.MaxBytes)
		}
		return nil, httputil.BadRequest(httputil.CodeInvalidJSON, "Malformed JSON body").WithCause(err)
	}
	if int64(len(data)) > v.config.MaxBytes {
		return nil, tooLarge(v.config.MaxBytes)
	}
	r.Body = io.NopCloser(bytes.NewReader(data))

	var body any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return nil, httputil.BadRequest(httputil.CodeInvalidJSON, "Malformed JSON body").WithCause(err)
	}
	if dec.More() {
		return nil, httputil.BadRequest(httputil.CodeInvalidJSON, "Malformed JSON body").
			WithCause(fmt.Errorf("trailing data after JSON value"))
	}

	if v.config.Schema != nil {
		if err := v.config.Schema.Validate(body); err != nil {
			return nil, httputil.ValidationError(http.StatusUnprocessableEntity, httputil.CodeValidationFailed,
				"Request body failed validation").WithDetails(FieldErrors(err)).WithCause(err)
		}
	}

	if v.config.Sanitize {
		body = sanitize.Object(body, sanitize.Options{Raw: v.config.RawFields})
	}
	return body, nil
}

// bodiless reports whether r carries no body to validate.
func bodiless(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodDelete:
		return r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0
	}
	return false
}

func tooLarge(limit int64) *httputil.Error {
	return httputil.ValidationError(http.StatusRequestEntityTooLarge, httputil.CodePayloadTooLarge,
		fmt.Sprintf("Request body exceeds %d bytes", limit))
}

// WithBody stores a validated body in ctx.
func WithBody(ctx context.Context, body any) context.Context {
	return context.WithValue(ctx, contextkeys.BodyKey, body)
}

// BodyFrom returns the validated body stored in ctx, nil when absent.
func BodyFrom(ctx context.Context) any {
	return ctx.Value(contextkeys.BodyKey)
}

// DecodeBody converts the validated body in ctx into dest.
func DecodeBody(ctx context.Context, dest any) error {
	body := BodyFrom(ctx)
	if body == nil {
		return errors.New("no validated body in context")
	}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode body: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to decode body: %w", err)
	}
	return nil
}
