package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/parisxmas/OxiDB/OxiForms/internal/apperr"
	"github.com/parisxmas/OxiDB/OxiForms/internal/auth"
	"github.com/parisxmas/OxiDB/OxiForms/internal/logger"
)

// Problem is the error body of every failed request.
type Problem struct {
	Status  int               `json:"status"`
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Details map[string]any    `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

const maxJSONBody = 1 << 20

func readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return apperr.Validation(apperr.CodeInvalidInput, "invalid request body: "+err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError renders err as a problem document. It is also the error writer
// of the auth middleware.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	p := problemFor(r, err)
	if p.Status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed", "code", p.Code, "error", err)
	}
	if p.Status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) { WriteError(w, r, err) }

func problemFor(r *http.Request, err error) Problem {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return Problem{
			Status: http.StatusRequestEntityTooLarge,
			Error:  fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
			Code:   apperr.CodeInvalidInput,
		}
	}
	ae, ok := apperr.As(err)
	if !ok {
		return Problem{Status: http.StatusInternalServerError, Error: "internal error", Code: apperr.CodeInternal}
	}
	p := Problem{Status: statusFor(r, ae), Error: ae.Message, Code: ae.Code, Details: ae.Details}
	if p.Status == http.StatusInternalServerError {
		p.Error, p.Details = "internal error", nil
	}
	if fields, ok := ae.Details["fields"].(map[string]string); ok {
		p.Fields = fields
	} else if field, ok := ae.Details["field"].(string); ok && ae.Kind == apperr.KindValidation {
		p.Fields = map[string]string{field: ae.Code}
	}
	return p
}

func statusFor(r *http.Request, e *apperr.Error) int {
	switch e.Kind {
	case apperr.KindValidation:
		if e.Code == apperr.CodeInvalidInput {
			return http.StatusBadRequest
		}
		return http.StatusUnprocessableEntity
	case apperr.KindAuthorization:
		switch {
		case e.Code == apperr.CodeInvalidCredentials:
			return http.StatusUnauthorized
		case e.Code == apperr.CodeUnauthorized && auth.GetUser(r.Context()) == nil:
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindDependency:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
