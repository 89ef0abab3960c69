package core_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"gwi.com/rag-chat/internal/core"
	"gwi.com/rag-chat/internal/core/coretest"
	"gwi.com/rag-chat/internal/document"
	"gwi.com/rag-chat/internal/store"
	"gwi.com/rag-chat/internal/vectorstore/chromemstore"
)

type fixture struct {
	embedder *coretest.FakeEmbedder
	model    *coretest.FakeModel
	store    *chromemstore.Store
	sessions *store.MemoryStore
	rag      *core.RAGService
	chat     *core.ChatService
	ingest   *core.IngestService
	media    *core.MediaService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	vs, err := chromemstore.New("", "chat_docs", false)
	require.NoError(t, err)

	f := &fixture{
		embedder: &coretest.FakeEmbedder{},
		model:    &coretest.FakeModel{},
		store:    vs,
		sessions: store.NewMemoryStore(),
	}
	f.rag = core.NewRAGService(f.embedder, vs)
	f.chat = core.NewChatService(f.sessions, f.rag, f.model, 4, "default_user")
	f.ingest = core.NewIngestService(f.embedder, vs, document.NewSplitter(1000, 200), t.TempDir())
	f.media = core.NewMediaService(f.model)
	return f
}
