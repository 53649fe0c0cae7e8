package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/parisxmas/OxiDB/OxiForms/internal/apperr"
	"github.com/parisxmas/OxiDB/OxiForms/internal/auth"
	"github.com/parisxmas/OxiDB/OxiForms/internal/blob"
	"github.com/parisxmas/OxiDB/OxiForms/internal/service"
)

type SubmissionHandler struct {
	svc            *service.SubmissionService
	maxUploadBytes int64
}

func NewSubmissionHandler(svc *service.SubmissionService, maxUploadBytes int64) *SubmissionHandler {
	return &SubmissionHandler{svc: svc, maxUploadBytes: maxUploadBytes}
}

// Submit accepts either multipart (a "data" JSON part plus one file part per
// file field) or a JSON body {"data": {...}}. It is public; the submission
// is always evaluated as anonymous.
func (h *SubmissionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var (
		data    map[string]any
		uploads []blob.Upload
		err     error
	)
	if mediaType == "multipart/form-data" {
		data, uploads, err = h.readMultipart(w, r)
	} else {
		var req struct {
			Data map[string]any `json:"data"`
		}
		err = readJSON(w, r, &req)
		data = req.Data
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	sub, err := h.svc.Submit(r.Context(), chi.URLParam(r, "publicId"), data, uploads)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": sub.ID, "createdAt": sub.CreatedAt})
}

func (h *SubmissionHandler) readMultipart(w http.ResponseWriter, r *http.Request) (map[string]any, []blob.Upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, err
		}
		return nil, nil, apperr.Validation(apperr.CodeInvalidInput, "invalid multipart body: "+err.Error())
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	var data map[string]any
	if raw := r.FormValue("data"); raw != "" {
		dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
		dec.UseNumber()
		if err := dec.Decode(&data); err != nil {
			return nil, nil, apperr.Validation(apperr.CodeInvalidInput, "invalid data JSON: "+err.Error())
		}
	}
	if data == nil {
		data = map[string]any{}
	}
	// plain text parts are values too; unknown names fail validation
	// instead of being dropped
	for field, values := range r.MultipartForm.Value {
		if field == "data" {
			continue
		}
		if _, dup := data[field]; dup || len(values) > 1 {
			return nil, nil, apperr.Validation(apperr.CodeInvalidFieldValue,
				"field "+field+" was sent more than once").With("field", field)
		}
		data[field] = values[0]
	}
	var uploads []blob.Upload
	for field, headers := range r.MultipartForm.File {
		for _, fh := range headers {
			f, err := fh.Open()
			if err != nil {
				return nil, nil, fmt.Errorf("open part %s: %w", field, err)
			}
			content, err := io.ReadAll(f)
			_ = f.Close()
			if err != nil {
				return nil, nil, fmt.Errorf("read part %s: %w", field, err)
			}
			uploads = append(uploads, blob.Upload{
				Field:       field,
				FileName:    fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Data:        content,
			})
		}
	}
	return data, uploads, nil
}

// List pages with ?skip=&limit= and filters with data.<field>=<value>.
func (h *SubmissionHandler) List(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptions(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := h.svc.List(r.Context(), auth.Principal(r.Context()), chi.URLParam(r, "formId"), opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func listOptions(q url.Values) (service.ListOptions, error) {
	var opts service.ListOptions
	for name, dst := range map[string]*int{"skip": &opts.Skip, "limit": &opts.Limit} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return opts, apperr.Validation(apperr.CodeInvalidInput, name+" must be a number").With("field", name)
		}
		*dst = n
	}
	for key, values := range q {
		field, ok := strings.CutPrefix(key, "data.")
		if !ok {
			continue
		}
		if opts.Equals == nil {
			opts.Equals = map[string]string{}
		}
		opts.Equals[field] = values[0]
	}
	return opts, nil
}

func (h *SubmissionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sub, err := h.svc.Get(r.Context(), auth.Principal(r.Context()), chi.URLParam(r, "subId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *SubmissionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "subId")
	if err := h.svc.Delete(r.Context(), auth.Principal(r.Context()), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

func (h *SubmissionHandler) Download(w http.ResponseWriter, r *http.Request) {
	data, ref, err := h.svc.Download(r.Context(), auth.Principal(r.Context()),
		chi.URLParam(r, "subId"), chi.URLParam(r, "field"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", ref.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": ref.FileName}))
	if ref.Checksum != "" {
		w.Header().Set("ETag", strconv.Quote(ref.Checksum))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
