package httpapi

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/a3tai/taxform-filler/internal/records"
	"github.com/a3tai/taxform-filler/internal/taxform"
)

const (
	contentTypePDF  = "application/pdf"
	contentTypeJSON = "application/json"
	contentTypeZip  = "application/zip"

	// ManifestName is the batch archive entry describing every item
	ManifestName = "manifest.json"
)

// handleRenderPDF fills a stored form record and returns it inline
func (s *Server) handleRenderPDF(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "Error: record rendering is not configured", http.StatusNotImplemented)
		return
	}

	taxpayerID := r.PathValue("taxpayer_id")
	year, err := strconv.Atoi(r.PathValue("year"))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: year %q", records.ErrInvalidKey, r.PathValue("year")))
		return
	}
	pk, err := strconv.ParseInt(r.PathValue("pk"), 10, 64)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: form id %q", records.ErrInvalidKey, r.PathValue("pk")))
		return
	}

	rec, err := s.store.Get(r.Context(), taxpayerID, year, pk)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.svc.Generate(r.Context(), taxform.RecordData{Record: rec})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writePDF(w, fmt.Sprintf("Form_%d_%d.pdf", pk, year), result)
}

// handleRenderForm redirects the former HTML view to the PDF view
func (s *Server) handleRenderForm(w http.ResponseWriter, r *http.Request) {
	target := fmt.Sprintf("/api/v1/taxpayer/%s/render/pdf/%s/%s/",
		r.PathValue("taxpayer_id"), r.PathValue("year"), r.PathValue("pk"))
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) handleFill(w http.ResponseWriter, r *http.Request) {
	form := r.PathValue("form")

	skipGreyOut, err := greyOutParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "Error: request body too large or unreadable", http.StatusRequestEntityTooLarge)
		return
	}
	payload, err := taxform.ParsePayload(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.svc.Fill(r.Context(), taxform.FillRequest{
		Form:        form,
		Payload:     payload,
		SkipGreyOut: skipGreyOut,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writePDF(w, form+".pdf", result)
}

// greyOutParam reads ?grey_out=; the default keeps grey-out on
func greyOutParam(r *http.Request) (skip bool, err error) {
	raw := r.URL.Query().Get("grey_out")
	if raw == "" {
		return false, nil
	}
	on, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &taxform.Error{
			Kind:    taxform.KindInvalidPayload,
			Message: fmt.Sprintf("grey_out must be a boolean, got %q", raw),
		}
	}
	return !on, nil
}

type batchRequest struct {
	Items []batchItem `json:"items"`
}

type batchItem struct {
	ID      string          `json:"id"`
	Form    string          `json:"form"`
	GreyOut *bool           `json:"grey_out,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

type manifestEntry struct {
	ID    string         `json:"id"`
	Form  string         `json:"form"`
	File  string         `json:"file,omitempty"`
	Stats *taxform.Stats `json:"stats,omitempty"`
	Kind  string         `json:"kind,omitempty"`
	Error string         `json:"error,omitempty"`
}

// handleBatch fills several forms and returns them as a zip archive with a
// manifest. Item failures are reported in the manifest.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, r, &taxform.Error{
			Kind:    taxform.KindInvalidPayload,
			Message: "batch request is not valid JSON",
			Err:     err,
		})
		return
	}
	if len(req.Items) == 0 {
		s.writeError(w, r, &taxform.Error{Kind: taxform.KindInvalidPayload, Message: "batch has no items"})
		return
	}

	if err := checkBatchIDs(req.Items); err != nil {
		s.writeError(w, r, err)
		return
	}

	// Items with unparsable payloads never reach the pool
	manifest := make([]manifestEntry, len(req.Items))
	items := make([]taxform.BatchItem, 0, len(req.Items))
	slots := make([]int, 0, len(req.Items))
	for i, it := range req.Items {
		manifest[i] = manifestEntry{ID: it.ID, Form: it.Form}
		payload, err := taxform.ParsePayload(it.Payload)
		if err != nil {
			manifest[i].Kind = taxform.KindOf(err).String()
			manifest[i].Error = err.Error()
			continue
		}
		items = append(items, taxform.BatchItem{
			ID: it.ID,
			Request: taxform.FillRequest{
				Form:        it.Form,
				Payload:     payload,
				SkipGreyOut: it.GreyOut != nil && !*it.GreyOut,
			},
		})
		slots = append(slots, i)
	}

	results, err := s.svc.FillBatch(r.Context(), items)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for j, res := range results {
		entry := &manifest[slots[j]]
		entry.ID = res.ID
		if res.Err != nil {
			entry.Kind = taxform.KindOf(res.Err).String()
			entry.Error = res.Err.Error()
			continue
		}
		entry.File = fmt.Sprintf("%s_%s.pdf", res.ID, res.Form)
		stats := res.Result.Stats
		entry.Stats = &stats

		f, err := zw.Create(entry.File)
		if err == nil {
			_, err = f.Write(res.Result.PDF)
		}
		if err != nil {
			s.writeError(w, r, fmt.Errorf("failed to write archive: %w", err))
			return
		}
	}

	f, err := zw.Create(ManifestName)
	if err == nil {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		err = enc.Encode(manifest)
	}
	if err == nil {
		err = zw.Close()
	}
	if err != nil {
		s.writeError(w, r, fmt.Errorf("failed to write archive: %w", err))
		return
	}

	w.Header().Set("Content-Type", contentTypeZip)
	w.Header().Set("Content-Disposition", `attachment; filename="forms.zip"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = w.Write(buf.Bytes())
}

// checkBatchIDs rejects ids that cannot name an archive entry or that would
// collide with another item
func checkBatchIDs(items []batchItem) error {
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		if it.ID == "" {
			continue
		}
		if it.ID == "." || it.ID == ".." || strings.ContainsAny(it.ID, `/\:`) {
			return &taxform.Error{
				Kind:    taxform.KindInvalidPayload,
				Message: fmt.Sprintf("batch item id %q is not a valid file name", it.ID),
			}
		}
		if seen[it.ID] {
			return &taxform.Error{
				Kind:    taxform.KindInvalidPayload,
				Message: fmt.Sprintf("duplicate batch item id %q", it.ID),
			}
		}
		seen[it.ID] = true
	}
	return nil
}

func (s *Server) handleForms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"forms": s.svc.Forms()})
}

func (s *Server) handleFields(w http.ResponseWriter, r *http.Request) {
	form := r.PathValue("form")
	fields, err := s.svc.Fields(r.Context(), form)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"form": form, "fields": fields})
}

func (s *Server) handleCoverage(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.Coverage(r.Context(), r.PathValue("form"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleHealth reports 503 when a form with a mapping has an unusable
// template
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.svc.CheckTemplates(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status, code := "ok", http.StatusOK
	for _, st := range statuses {
		if _, hasMapping := s.svc.Registry().Mapping(st.Form); hasMapping && !st.Valid {
			status, code = "degraded", http.StatusServiceUnavailable
			break
		}
	}
	writeJSON(w, code, map[string]any{"status": status, "templates": statuses})
}

func writePDF(w http.ResponseWriter, filename string, result *taxform.FillResult) {
	h := w.Header()
	h.Set("Content-Type", contentTypePDF)
	h.Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename))
	h.Set("Content-Length", strconv.Itoa(len(result.PDF)))
	h.Set("X-Taxform-Filled", strconv.Itoa(result.Stats.Filled))
	if len(result.Stats.Unresolved) > 0 {
		h.Set("X-Taxform-Unresolved", strings.Join(result.Stats.Unresolved, ","))
	}
	_, _ = w.Write(result.PDF)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// writeError maps an error onto a status code and a plain-text message
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := classify(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", "request_id", RequestID(r.Context()), "error", err)
	} else {
		s.logger.Debug("request rejected", "request_id", RequestID(r.Context()), "status", code, "error", err)
	}
	http.Error(w, msg, code)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, records.ErrNotFound):
		return http.StatusNotFound, "Error: Form not found. " + err.Error()
	case errors.Is(err, records.ErrInvalidKey):
		return http.StatusBadRequest, "Error: Invalid form data. " + err.Error()
	}

	switch taxform.KindOf(err) {
	case taxform.KindTemplateMissing:
		return http.StatusInternalServerError, "Error: PDF template not found. " + err.Error()
	case taxform.KindUnknownForm, taxform.KindInvalidPayload, taxform.KindNoMappingForForm:
		return http.StatusBadRequest, "Error: Invalid form data. " + err.Error()
	default:
		return http.StatusInternalServerError, "Error generating PDF: " + err.Error()
	}
}
