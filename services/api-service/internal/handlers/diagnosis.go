package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/agribeta/agribeta/libs/httpx"
	"github.com/agribeta/agribeta/services/api-service/internal/diagnosis"
	"github.com/go-chi/chi/v5"
)

// analyze accepts a multipart upload with the photo in the "image" field and
// an optional "crop_type".
func (h *Handler) analyze(w http.ResponseWriter, r *http.Request) {
	p, _ := profileFrom(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(h.cfg.MaxUploadBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			httpx.WriteError(w, http.StatusRequestEntityTooLarge, "image_too_large", "image exceeds the upload limit")
			return
		}
		httpx.WriteError(w, http.StatusBadRequest, "invalid_form", "expected multipart form data")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("image")
	if err != nil {
		httpx.WriteValidation(w, map[string]string{"image": "is required"})
		return
	}
	defer file.Close()
	if header.Size > h.cfg.MaxUploadBytes {
		httpx.WriteError(w, http.StatusRequestEntityTooLarge, "image_too_large", "image exceeds the upload limit")
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, h.cfg.MaxUploadBytes+1))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_form", "could not read image")
		return
	}
	if len(data) == 0 {
		httpx.WriteValidation(w, map[string]string{"image": "is empty"})
		return
	}

	d, err := h.svc.Diagnosis.Analyze(r.Context(), p, diagnosis.Image{
		Data:     data,
		Filename: header.Filename,
		CropType: r.FormValue("crop_type"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toDiagnosis(d))
}

func (h *Handler) listDiagnoses(w http.ResponseWriter, r *http.Request) {
	p, _ := profileFrom(r.Context())
	out, err := h.svc.Diagnosis.List(r.Context(), p, queryInt(r, "limit", 20))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"diagnoses": mapSlice(out, toDiagnosis)})
}

func (h *Handler) getDiagnosis(w http.ResponseWriter, r *http.Request) {
	p, _ := profileFrom(r.Context())
	d, err := h.svc.Diagnosis.Get(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toDiagnosis(d))
}
