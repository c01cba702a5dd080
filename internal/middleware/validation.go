package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "enrichdash/internal/errors"
)

// DefaultMaxBodySize bounds JSON request bodies
const DefaultMaxBodySize = 10 * 1024 * 1024

// maxIDLength is the longest job or company ID accepted in a path
const maxIDLength = 128

// ValidationMiddleware checks request bodies and validates decoded payloads
// with struct tags.
type ValidationMiddleware struct {
	validator    *validator.Validate
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
	maxBodySize  int64
}

// NewValidationMiddleware creates a new validation middleware
func NewValidationMiddleware(logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *ValidationMiddleware {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("safeid", func(fl validator.FieldLevel) bool {
		return safeID(fl.Field().String())
	})
	// Field names in messages follow the JSON payload, not the Go struct
	v.RegisterTagNameFunc(jsonFieldName)

	return &ValidationMiddleware{
		validator:    v,
		logger:       logger.With(slog.String("component", "validation")),
		errorHandler: errorHandler,
		maxBodySize:  DefaultMaxBodySize,
	}
}

// hasNoBody reports methods whose body the API ignores
func hasNoBody(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodDelete:
		return true
	}
	return false
}

// ValidateRequest buffers the body of a JSON request, rejecting it when it is
// larger than the limit or not well-formed.
func (m *ValidationMiddleware) ValidateRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hasNoBody(r.Method) || r.Body == nil || r.ContentLength == 0 {
			next.ServeHTTP(w, r)
			return
		}

		if r.ContentLength > m.maxBodySize {
			m.errorHandler.HandleError(w, r, m.tooLarge(r.ContentLength))
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, m.maxBodySize))
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				m.errorHandler.HandleError(w, r, m.tooLarge(-1))
				return
			}
			m.logger.WarnContext(r.Context(), "Request body unreadable",
				slog.String("request_id", GetRequestID(r.Context())),
				slog.String("error", err.Error()))
			m.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
			return
		}

		if len(body) > 0 && !json.Valid(body) {
			m.errorHandler.HandleError(w, r, apierrors.New(http.StatusBadRequest, "INVALID_JSON", "Request body is not valid JSON"))
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}

func (m *ValidationMiddleware) tooLarge(size int64) *apierrors.APIError {
	details := map[string]interface{}{"max_size": m.maxBodySize}
	if size >= 0 {
		details["size"] = size
	}
	return apierrors.NewWithDetails(http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
		"Request body exceeds maximum allowed size", details)
}

// DecodeAndValidate decodes the JSON body of r into dst and validates it.
// The returned error is an *apierrors.APIError ready to render.
func (m *ValidationMiddleware) DecodeAndValidate(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return apierrors.ErrInvalidRequest
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, m.maxBodySize)).Decode(dst); err != nil {
		return apierrors.InvalidRequestWithError(err)
	}
	return m.ValidateStruct(dst)
}

// ValidateStruct runs the struct tags of v, collecting one message per failed field
func (m *ValidationMiddleware) ValidateStruct(v interface{}) error {
	err := m.validator.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apierrors.InvalidRequestWithError(err)
	}

	out := make([]apierrors.ValidationError, len(fieldErrs))
	for i, fe := range fieldErrs {
		out[i] = apierrors.ValidationError{Field: fe.Field(), Message: describe(fe)}
	}
	return apierrors.NewValidationErrors(out)
}

// ValidateID checks a path identifier such as a job or company ID
func (m *ValidationMiddleware) ValidateID(name, value string) error {
	if err := m.validator.Var(value, "required,safeid"); err != nil {
		return apierrors.ErrValidation(name, name+" must be a non-empty identifier without path separators")
	}
	return nil
}

// ContentTypeValidator rejects requests with a body unless their media type
// is one of allowed.
func ContentTypeValidator(allowed ...string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hasNoBody(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Content-Type")
			if header == "" {
				render.Render(w, r, apierrors.New(http.StatusBadRequest, "MISSING_CONTENT_TYPE", "Content-Type header is required"))
				return
			}

			mediaType, _, err := mime.ParseMediaType(header)
			if err == nil {
				for _, want := range allowed {
					if strings.EqualFold(mediaType, want) {
						next.ServeHTTP(w, r)
						return
					}
				}
			}

			render.Render(w, r, apierrors.NewWithDetails(http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE",
				"Unsupported content type", map[string]interface{}{
					"content_type": header,
					"allowed":      allowed,
				}))
		})
	}
}

// tagMessages renders a failed tag; %[1]s is the field and %[2]s the parameter
var tagMessages = map[string]string{
	"required": "%[1]s is required",
	"min":      "%[1]s must be at least %[2]s",
	"max":      "%[1]s must be at most %[2]s",
	"gt":       "%[1]s must be greater than %[2]s",
	"gte":      "%[1]s must be greater than or equal to %[2]s",
	"safeid":   "%[1]s must be a valid identifier",
}

func describe(fe validator.FieldError) string {
	field, param := fe.Field(), fe.Param()
	switch {
	case fe.Tag() == "min" && fe.Kind() == reflect.Slice:
		return fmt.Sprintf("%s must contain at least %s item(s)", field, param)
	case fe.Tag() == "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.Join(strings.Fields(param), ", "))
	}
	if tmpl, ok := tagMessages[fe.Tag()]; ok {
		return fmt.Sprintf(tmpl, field, param)
	}
	return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
}

func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}

// safeID accepts identifiers that can be placed in a URL path segment
func safeID(id string) bool {
	if id == "" || len(id) > maxIDLength || strings.Contains(id, "..") {
		return false
	}
	return !strings.ContainsAny(id, `/\?#%`)
}

// QueryParamValidator validates query parameters
type QueryParamValidator struct {
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewQueryParamValidator creates a new query parameter validator
func NewQueryParamValidator(logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *QueryParamValidator {
	return &QueryParamValidator{
		logger:       logger.With(slog.String("component", "query_validator")),
		errorHandler: errorHandler,
	}
}

// ValidateEnum returns the canonical spelling of query parameter param, or
// defaultValue when it is absent. A value outside allowed is answered with 400
// and ok is false.
func (v *QueryParamValidator) ValidateEnum(w http.ResponseWriter, r *http.Request, param string, allowed []string, defaultValue string) (value string, ok bool) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return defaultValue, true
	}
	for _, candidate := range allowed {
		if strings.EqualFold(raw, candidate) {
			return candidate, true
		}
	}

	v.logger.DebugContext(r.Context(), "Rejected query parameter",
		slog.String("param", param), slog.String("value", raw))
	v.errorHandler.HandleError(w, r, apierrors.ErrValidation(param,
		fmt.Sprintf("%s must be one of: %s", param, strings.Join(allowed, ", "))))
	return "", false
}
