package api

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"
)

const maxUploadBytes = 50 << 20 // 50 MB

// Upload handles POST /api/uploads (multipart/form-data, field "file").
//
//	@Summary		Upload an .xlsx or .xls spreadsheet
//	@Tags			uploads
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	true	"Spreadsheet"
//	@Success		200		{object}	page.UploadResult	"identical to the current upload"
//	@Success		201		{object}	page.UploadResult
//	@Failure		400		{object}	errResponse
//	@Router			/uploads [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".xlsx", ".xlsm", ".xls":
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("only .xlsx and .xls files are accepted"))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}

	res, err := h.ctrl.Upload(r.Context(), SessionFrom(r.Context()), filepath.Base(header.Filename), data)
	if err != nil {
		writeError(w, "upload", err)
		return
	}
	status := http.StatusCreated
	if res.Cached {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}
