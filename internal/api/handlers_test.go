package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/rag-chat/internal/core"
	"gwi.com/rag-chat/internal/core/coretest"
	"gwi.com/rag-chat/internal/document"
	"gwi.com/rag-chat/internal/document/documenttest"
	"gwi.com/rag-chat/internal/store"
	"gwi.com/rag-chat/internal/vectorstore/chromemstore"
)

type testServer struct {
	handler  http.Handler
	model    *coretest.FakeModel
	store    *chromemstore.Store
	sessions *store.MemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newLimitedTestServer(t, 32<<20)
}

func newLimitedTestServer(t *testing.T, maxUploadBytes int64) *testServer {
	t.Helper()
	vs, err := chromemstore.New(filepath.Join(t.TempDir(), "vector_store"), "chat_docs", false)
	require.NoError(t, err)

	embedder := &coretest.FakeEmbedder{}
	model := &coretest.FakeModel{}
	sessions := store.NewMemoryStore()

	rag := core.NewRAGService(embedder, vs)
	chat := core.NewChatService(sessions, rag, model, 4, "default_user")
	ingest := core.NewIngestService(embedder, vs, document.NewSplitter(1000, 200), t.TempDir())
	media := core.NewMediaService(model)

	static := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(static, "index.html"), []byte("<h1>chat</h1>"), 0o644))

	h := NewAPIHandler(chat, ingest, media, maxUploadBytes)
	return &testServer{
		handler:  NewRouter(h, static),
		model:    model,
		store:    vs,
		sessions: sessions,
	}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func chatRequest(t *testing.T, body any) *http.Request {
	b, err := json.Marshal(body)
	require.NoError(t, err)
	return httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(b))
}

func multipartRequest(t *testing.T, path, filename, contentType string, data []byte, fields map[string]string) *http.Request {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
		hdr.Set("Content-Type", contentType)
		part, err := mw.CreatePart(hdr)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeDetail(t *testing.T, rec *httptest.ResponseRecorder) string {
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Detail
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/health/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStaticFrontend(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<h1>chat</h1>")
}

func TestChatStreamsPlainText(t *testing.T) {
	s := newTestServer(t)
	s.model.Reply = func([]store.Turn, string) []core.Fragment {
		return []core.Fragment{{Text: "Hello"}, {Text: ", "}, {Text: "world"}}
	}

	rec := s.do(chatRequest(t, ChatRequest{Query: "hi", SessionID: "abc"}))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "Hello, world", rec.Body.String())
	assert.True(t, rec.Flushed)

	turns, err := s.sessions.History(context.Background(), "abc")
	require.NoError(t, err)
	assert.Len(t, turns, 2)
}

func TestChatSessionHeader(t *testing.T) {
	s := newTestServer(t)
	req := chatRequest(t, map[string]any{"query": "hi"})
	req.Header.Set("X-Session-ID", "from-header")
	rec := s.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	turns, err := s.sessions.History(context.Background(), "from-header")
	require.NoError(t, err)
	assert.Len(t, turns, 2)
}

func TestChatBadRequests(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader("{not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(chatRequest(t, ChatRequest{Query: "  "}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, decodeDetail(t, rec))
	assert.Empty(t, s.model.ChatCalls())
}

func TestChatErrorBeforeFirstFragment(t *testing.T) {
	s := newTestServer(t)
	s.model.Reply = func([]store.Turn, string) []core.Fragment {
		return []core.Fragment{{Err: errors.New("model unavailable")}}
	}

	rec := s.do(chatRequest(t, ChatRequest{Query: "hi"}))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decodeDetail(t, rec), "model unavailable")
}

func TestChatErrorMidStream(t *testing.T) {
	s := newTestServer(t)
	s.model.Reply = func([]store.Turn, string) []core.Fragment {
		return []core.Fragment{{Text: "partial"}, {Err: errors.New("boom")}}
	}

	rec := s.do(chatRequest(t, ChatRequest{Query: "hi", SessionID: "s"}))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "partial", rec.Body.String())

	turns, err := s.sessions.History(context.Background(), "s")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestUploadThenChatWithRAG(t *testing.T) {
	s := newTestServer(t)
	pdf := documenttest.BuildPDF([]string{"The capital of France is Paris."})

	rec := s.do(multipartRequest(t, "/api/upload/document", "facts.pdf", "application/pdf", pdf, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var up UploadResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&up))
	assert.Equal(t, UploadResponse{Status: "success", Message: "Processed and stored 1 chunks.", Chunks: 1}, up)

	s.model.Reply = func(_ []store.Turn, prompt string) []core.Fragment {
		if strings.Contains(prompt, "Paris") {
			return []core.Fragment{{Text: "It is Paris."}}
		}
		return []core.Fragment{{Text: "I don't know."}}
	}
	rec = s.do(chatRequest(t, ChatRequest{Query: "What is the capital of France?", UseRAG: true}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Paris")

	calls := s.model.ChatCalls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, "Context:\nThe capital of France is Paris.")
}

func TestUploadThreePages(t *testing.T) {
	s := newTestServer(t)
	pdf := documenttest.BuildPDF([]string{
		documenttest.Filler("One.", 900),
		documenttest.Filler("Two.", 900),
		documenttest.Filler("Three.", 900),
	})

	rec := s.do(multipartRequest(t, "/api/upload/document", "three.pdf", "application/pdf", pdf, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var up UploadResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&up))
	assert.Equal(t, 3, up.Chunks)

	count, err := s.store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, up.Chunks, count)
}

func TestUploadRejectsNonPDF(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(multipartRequest(t, "/api/upload/document", "notes.txt", "text/plain", []byte("hello"), nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Only PDF files are supported.", decodeDetail(t, rec))

	count, err := s.store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestUploadMissingFile(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(multipartRequest(t, "/api/upload/document", "", "", nil, map[string]string{"other": "x"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadBrokenPDF(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(multipartRequest(t, "/api/upload/document", "broken.pdf", "application/pdf", []byte("nope"), nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotEmpty(t, decodeDetail(t, rec))
}

func TestUploadCorruptPageTree(t *testing.T) {
	s := newTestServer(t)
	data := documenttest.CorruptPageTree([]string{"The capital of France is Paris."})

	rec := s.do(multipartRequest(t, "/api/upload/document", "corrupt.pdf", "application/pdf", data, nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, decodeDetail(t, rec), "malformed pdf corrupt.pdf")

	n, err := s.store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUploadTooLarge(t *testing.T) {
	s := newLimitedTestServer(t, 1024)
	data := documenttest.BuildPDF([]string{documenttest.Filler("Big.", 4096)})

	rec := s.do(multipartRequest(t, "/api/upload/document", "big.pdf", "application/pdf", data, nil))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "Upload exceeds the limit of 1024 bytes.", decodeDetail(t, rec))

	rec = s.do(multipartRequest(t, "/api/analyze/media", "big.png", "image/png", bytes.Repeat([]byte{0}, 4096),
		map[string]string{"query": "q"}))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, s.model.ImageFormats())
}

func pngData(t *testing.T) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

func TestAnalyzeMedia(t *testing.T) {
	s := newTestServer(t)
	s.model.Vision = func(format string, _ []byte, query string) (string, error) {
		return "A tiny " + format + " for: " + query, nil
	}

	rec := s.do(multipartRequest(t, "/api/analyze/media", "dot.png", "image/png", pngData(t),
		map[string]string{"query": "What is this?"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp AnalysisResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "A tiny png for: What is this?", resp.Analysis)
}

func TestAnalyzeMediaRejectsNonImage(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(multipartRequest(t, "/api/analyze/media", "doc.pdf", "application/pdf", []byte("%PDF"),
		map[string]string{"query": "q"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Only image analysis is supported in this demo.", decodeDetail(t, rec))
	assert.Empty(t, s.model.ImageFormats())
}

func TestAnalyzeMediaFailures(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(multipartRequest(t, "/api/analyze/media", "bad.jpg", "image/jpeg", []byte("garbage"),
		map[string]string{"query": "q"}))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, strings.HasPrefix(decodeDetail(t, rec), "Failed to analyze image: "))

	s.model.Vision = func(string, []byte, string) (string, error) { return "", errors.New("blocked") }
	rec = s.do(multipartRequest(t, "/api/analyze/media", "dot.png", "image/png", pngData(t),
		map[string]string{"query": "q"}))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to analyze image: blocked", decodeDetail(t, rec))

	rec = s.do(multipartRequest(t, "/api/analyze/media", "dot.png", "image/png", pngData(t), nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionMessages(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(chatRequest(t, ChatRequest{Query: "hi", SessionID: "abc"}))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/sessions/abc/messages", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp SessionMessagesResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "abc", resp.SessionID)
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, store.RoleUser, resp.Messages[0].Role)
	assert.Equal(t, "echo: hi", resp.Messages[1].Content)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/sessions/unknown/messages", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"session_id":"unknown","messages":[]}`, rec.Body.String())
}
