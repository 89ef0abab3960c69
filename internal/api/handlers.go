package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"gwi.com/rag-chat/internal/core"
	"gwi.com/rag-chat/internal/store"
)

const (
	msgOnlyPDF    = "Only PDF files are supported."
	msgOnlyImages = "Only image analysis is supported in this demo."
)

type APIHandler struct {
	chatService    *core.ChatService
	ingestService  *core.IngestService
	mediaService   *core.MediaService
	maxUploadBytes int64
}

func NewAPIHandler(cs *core.ChatService, is *core.IngestService, ms *core.MediaService, maxUploadBytes int64) *APIHandler {
	return &APIHandler{
		chatService:    cs,
		ingestService:  is,
		mediaService:   ms,
		maxUploadBytes: maxUploadBytes,
	}
}

type ErrorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, ErrorResponse{Detail: detail})
}

type ChatRequest struct {
	Query     string `json:"query"`
	UseRAG    bool   `json:"use_rag"`
	SessionID string `json:"session_id,omitempty"`
}

// ChatHandler streams the model reply as plain text, flushing every fragment.
// Errors before the first fragment produce a JSON error; later errors end the
// stream and are only logged.
func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = r.Header.Get("X-Session-ID")
	}

	fragments, err := h.chatService.Chat(r.Context(), sessionID, req.Query, req.UseRAG)
	if err != nil {
		if errors.Is(err, core.ErrEmptyQuery) {
			writeError(w, http.StatusBadRequest, "Query must not be empty.")
			return
		}
		logger.Error().Err(err).Msg("Error starting chat")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	first, ok := <-fragments
	if ok && first.Err != nil {
		logger.Error().Err(first.Err).Msg("Chat stream failed before first fragment")
		writeError(w, http.StatusInternalServerError, first.Err.Error())
		return
	}

	rc := http.NewResponseController(w)
	// Streams may outlive the server-wide write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		logger.Debug().Err(err).Msg("Could not clear write deadline")
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if !ok {
		return
	}

	write := func(text string) error {
		if _, err := io.WriteString(w, text); err != nil {
			return err
		}
		return rc.Flush()
	}
	if err := write(first.Text); err != nil {
		logger.Warn().Err(err).Msg("Client went away during chat stream")
		return
	}
	for f := range fragments {
		if f.Err != nil {
			logger.Error().Err(f.Err).Msg("Chat stream failed")
			return
		}
		if err := write(f.Text); err != nil {
			logger.Warn().Err(err).Msg("Client went away during chat stream")
			return
		}
	}
}

type UploadResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Chunks  int    `json:"chunks"`
}

func (h *APIHandler) formFile(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Upload exceeds the limit of %d bytes.", tooLarge.Limit))
			return nil, nil, false
		}
		writeError(w, http.StatusBadRequest, "Invalid multipart form: "+err.Error())
		return nil, nil, false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "A file is required in the 'file' field.")
		return nil, nil, false
	}
	return file, header, true
}

func (h *APIHandler) UploadDocumentHandler(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())

	file, header, ok := h.formFile(w, r)
	if !ok {
		return
	}
	defer r.MultipartForm.RemoveAll()
	defer file.Close()

	if !core.IsPDF(header.Filename) {
		writeError(w, http.StatusBadRequest, msgOnlyPDF)
		return
	}

	n, err := h.ingestService.IngestUpload(r.Context(), header.Filename, file)
	if err != nil {
		if errors.Is(err, core.ErrUnsupportedFileType) {
			writeError(w, http.StatusBadRequest, msgOnlyPDF)
			return
		}
		logger.Error().Err(err).Str("file", header.Filename).Msg("Error processing upload")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{
		Status:  "success",
		Message: fmt.Sprintf("Processed and stored %d chunks.", n),
		Chunks:  n,
	})
}

type AnalysisResponse struct {
	Analysis string `json:"analysis"`
}

func (h *APIHandler) AnalyzeMediaHandler(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())

	file, header, ok := h.formFile(w, r)
	if !ok {
		return
	}
	defer r.MultipartForm.RemoveAll()
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !core.IsImage(contentType) {
		writeError(w, http.StatusBadRequest, msgOnlyImages)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read upload: "+err.Error())
		return
	}

	analysis, err := h.mediaService.Analyze(r.Context(), contentType, data, r.FormValue("query"))
	if err != nil {
		switch {
		case errors.Is(err, core.ErrUnsupportedMediaType):
			writeError(w, http.StatusBadRequest, msgOnlyImages)
		case errors.Is(err, core.ErrEmptyQuery):
			writeError(w, http.StatusBadRequest, "A query is required in the 'query' field.")
		default:
			logger.Error().Err(err).Msg("Error analyzing image")
			writeError(w, http.StatusInternalServerError, "Failed to analyze image: "+err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, AnalysisResponse{Analysis: analysis})
}

type SessionMessagesResponse struct {
	SessionID string       `json:"session_id"`
	Messages  []store.Turn `json:"messages"`
}

func (h *APIHandler) SessionMessagesHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, turns, err := h.chatService.History(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Error loading session history")
		writeError(w, http.StatusInternalServerError, "Failed to load session history")
		return
	}
	if turns == nil {
		turns = []store.Turn{}
	}
	writeJSON(w, http.StatusOK, SessionMessagesResponse{SessionID: sessionID, Messages: turns})
}
