package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mind-engage/judged/internal/judging"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report json names so the field in an error body matches the request.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// httpError is a failure raised by the HTTP layer itself rather than a manager.
type httpError struct {
	status int
	code   string
	msg    string
}

func (e *httpError) Error() string { return e.msg }

func badRequest(msg string) error { return &httpError{http.StatusBadRequest, "bad_request", msg} }

func forbidden(msg string) error { return &httpError{http.StatusForbidden, "forbidden", msg} }

// decode reads a JSON body into dst and validates it. An empty body decodes
// to the zero value so optional payloads may be omitted.
func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return badRequest("bad json: " + err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			fe := ve[0]
			return &judging.Error{
				Code:    judging.CodeInvalidInput,
				Kind:    judging.KindValidation,
				Message: fmt.Sprintf("%s failed %q validation", fe.Field(), fe.Tag()),
				Field:   fe.Field(),
			}
		}
		return badRequest(err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(k judging.Kind) int {
	switch k {
	case judging.KindNotFound:
		return http.StatusNotFound
	case judging.KindConflict:
		return http.StatusConflict
	case judging.KindValidation:
		return http.StatusUnprocessableEntity
	case judging.KindUnauthorized:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// writeError maps judging errors onto status codes; anything else is a 500
// with the detail kept in the log.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var he *httpError
	if errors.As(err, &he) {
		writeJSON(w, he.status, map[string]string{"error": he.code, "message": he.msg})
		return
	}
	var je *judging.Error
	if errors.As(err, &je) {
		writeJSON(w, statusFor(je.Kind), je)
		return
	}
	slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal", "message": "internal error"})
}
