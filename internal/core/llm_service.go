package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"gwi.com/rag-chat/internal/store"
)

// maxEmbedBatch is the largest batch BatchEmbedContents accepts.
const maxEmbedBatch = 100

type LLMConfig struct {
	APIKey         string
	ChatModel      string
	VisionModel    string
	EmbeddingModel string
}

// LLMService is the Gemini client behind the chat, vision and embedding ports.
type LLMService struct {
	client *genai.Client
	cfg    LLMConfig
}

var (
	_ ChatModel           = (*LLMService)(nil)
	_ VisionModel         = (*LLMService)(nil)
	_ embeddings.Embedder = (*LLMService)(nil)
)

func NewLLMService(ctx context.Context, cfg LLMConfig) (*LLMService, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &LLMService{client: client, cfg: cfg}, nil
}

func (s *LLMService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing GenAI client")
		} else {
			log.Info().Msg("GenAI client closed")
		}
	}
}

// EmbedDocuments embeds texts for storage, in batches of at most maxEmbedBatch.
func (s *LLMService) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	em := s.client.EmbeddingModel(s.cfg.EmbeddingModel)
	em.TaskType = genai.TaskTypeRetrievalDocument

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxEmbedBatch {
		end := min(start+maxEmbedBatch, len(texts))
		batch := em.NewBatch()
		for _, t := range texts[start:end] {
			batch.AddContent(genai.Text(t))
		}
		res, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("gemini batch embedding request failed: %w", err)
		}
		if len(res.Embeddings) != end-start {
			return nil, fmt.Errorf("gemini returned %d embeddings for %d texts", len(res.Embeddings), end-start)
		}
		for _, e := range res.Embeddings {
			if e == nil || len(e.Values) == 0 {
				return nil, errors.New("no embedding data received from gemini")
			}
			vectors = append(vectors, e.Values)
		}
		log.Debug().Int("done", end).Int("total", len(texts)).Msg("Embedded document batch")
	}
	return vectors, nil
}

// EmbedQuery embeds a search query with the same model used for documents.
func (s *LLMService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	em := s.client.EmbeddingModel(s.cfg.EmbeddingModel)
	em.TaskType = genai.TaskTypeRetrievalQuery
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embedding request failed: %w", err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, errors.New("no embedding data received from gemini")
	}
	return res.Embedding.Values, nil
}

func (s *LLMService) StreamChat(ctx context.Context, history []store.Turn, prompt string) <-chan Fragment {
	out := make(chan Fragment)
	go func() {
		defer close(out)

		model := s.client.GenerativeModel(s.cfg.ChatModel)
		cs := model.StartChat()
		cs.History = toContents(history)

		iter := cs.SendMessageStream(ctx, genai.Text(prompt))
		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				send(ctx, out, Fragment{Err: fmt.Errorf("gemini chat stream failed: %w", err)})
				return
			}
			text := responseText(resp)
			if text == "" {
				continue
			}
			if !send(ctx, out, Fragment{Text: text}) {
				return
			}
		}
	}()
	return out
}

func (s *LLMService) DescribeImage(ctx context.Context, format string, data []byte, query string) (string, error) {
	model := s.client.GenerativeModel(s.cfg.VisionModel)
	resp, err := model.GenerateContent(ctx, genai.Text(query), genai.ImageData(format, data))
	if err != nil {
		return "", fmt.Errorf("gemini vision request failed: %w", err)
	}
	return imageAnalysis(resp)
}

// imageAnalysis is the text of a vision answer. A candidate without text,
// such as a safety-blocked one, is an error rather than an empty analysis.
func imageAnalysis(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("gemini returned no candidates")
	}
	text := responseText(resp)
	if text == "" {
		return "", fmt.Errorf("gemini returned no text (finish reason: %v)", resp.Candidates[0].FinishReason)
	}
	return text, nil
}

func toContents(history []store.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, t := range history {
		contents = append(contents, &genai.Content{
			Role:  t.Role,
			Parts: []genai.Part{genai.Text(t.Content)},
		})
	}
	return contents
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		} else {
			log.Debug().Str("type", fmt.Sprintf("%T", part)).Msg("Skipping non-text response part")
		}
	}
	return b.String()
}
