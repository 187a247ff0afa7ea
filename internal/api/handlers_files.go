package api

import (
	stderrors "errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/pinpincloud/internal/auth"
	"github.com/pinpincloud/internal/errors"
	"github.com/pinpincloud/internal/models"
	"github.com/pinpincloud/internal/service"
	"github.com/pinpincloud/internal/types"
)

// multipartMemory is the part of an upload kept in memory; the rest spills to disk
const multipartMemory = 32 << 20

// multipartOverhead allows for form boundaries and headers around the file part
const multipartOverhead = 1 << 20

// requirePrincipal returns the principal set by AuthMiddleware
func requirePrincipal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Authentication required", nil)
	}
	return principal, ok
}

// handleListFiles handles GET /api/files
func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	files, err := s.deps.Files.List(r.Context(), principal.UserID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"files": files,
		"count": len(files),
	})
}

// handleUploadFile handles POST /api/files with a multipart "file" field
func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			respondServiceError(w, r, errors.NewFileTooLargeError(r.ContentLength, s.config.MaxUploadBytes))
			return
		}
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Expected a multipart upload", nil)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Missing file field", nil)
		return
	}
	defer file.Close()

	record, err := s.deps.Files.Upload(r.Context(), &service.UploadInput{
		OwnerID:     principal.UserID,
		Name:        header.Filename,
		Size:        header.Size,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, record)
}

// handleDownloadFile handles GET /api/files/{id}/download
func (s *Server) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	file, result, err := s.deps.Files.Download(r.Context(), principal.UserID, mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	writeBlob(w, file, result)
}

// writeBlob streams downloaded contents as an attachment
func writeBlob(w http.ResponseWriter, file *models.File, result *service.DownloadResult) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": file.Name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.Header().Set("X-Download-Retries", strconv.Itoa(result.Retries))
	w.WriteHeader(http.StatusOK)
	w.Write(result.Data)
}

// handleDeleteFile handles DELETE /api/files/{id}
func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	id := mux.Vars(r)["id"]
	if err := s.deps.Files.Delete(r.Context(), principal.UserID, id); err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"id":      id,
	})
}

// createShareRequest is the body of POST /api/files/{id}/share
type createShareRequest struct {
	Mode     string `json:"mode"`
	Password string `json:"password,omitempty"`
}

// handleCreateShare handles POST /api/files/{id}/share
func (s *Server) handleCreateShare(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req createShareRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondInvalidBody(w)
		return
	}

	mode, err := types.ParseShareMode(req.Mode)
	if err != nil {
		respondServiceError(w, r, errors.NewInvalidParameterError("mode", "must be link or password"))
		return
	}

	id := mux.Vars(r)["id"]
	url, err := s.deps.Shares.CreateShare(r.Context(), principal.UserID, id, mode, req.Password)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"shareUrl": url,
		"mode":     mode,
	})
}

// handleRemoveShare handles DELETE /api/files/{id}/share
func (s *Server) handleRemoveShare(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	if err := s.deps.Shares.RemoveShare(r.Context(), principal.UserID, mux.Vars(r)["id"]); err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// sharedFileView is what an anonymous visitor sees of a shared file
type sharedFileView struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Size       string           `json:"size"`
	SizeBytes  int64            `json:"sizeBytes"`
	UploadedAt time.Time        `json:"uploadedAt"`
	ShareMode  *types.ShareMode `json:"shareMode,omitempty"`
}

func newSharedFileView(f *models.File) sharedFileView {
	return sharedFileView{
		ID:         f.ID,
		Name:       f.Name,
		Size:       f.SizeLabel,
		SizeBytes:  f.SizeBytes,
		UploadedAt: f.UploadedAt,
		ShareMode:  f.ShareMode,
	}
}

// sharePassword reads the optional X-Share-Password header
func sharePassword(r *http.Request) *string {
	if values, ok := r.Header["X-Share-Password"]; ok && len(values) > 0 {
		return &values[0]
	}
	return nil
}

// handleResolveShare handles GET /share/{id}
func (s *Server) handleResolveShare(w http.ResponseWriter, r *http.Request) {
	file, err := s.deps.Shares.ResolveShare(r.Context(), mux.Vars(r)["id"], sharePassword(r))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, newSharedFileView(file))
}

// downloadShareRequest is the optional body of POST /share/{id}/download
type downloadShareRequest struct {
	Password *string `json:"password,omitempty"`
}

// handleDownloadShare handles POST /share/{id}/download
func (s *Server) handleDownloadShare(w http.ResponseWriter, r *http.Request) {
	var req downloadShareRequest
	if err := parseJSONBody(r, &req); err != nil && !stderrors.Is(err, io.EOF) {
		respondInvalidBody(w)
		return
	}
	if req.Password == nil {
		req.Password = sharePassword(r)
	}

	file, result, err := s.deps.Shares.DownloadShared(r.Context(), mux.Vars(r)["id"], req.Password)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	writeBlob(w, file, result)
}
