// Package coretest provides in-process stand-ins for the model ports.
package coretest

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"

	"gwi.com/rag-chat/internal/core"
	"gwi.com/rag-chat/internal/store"
)

// EmbeddingDim is the length of FakeEmbedder vectors.
const EmbeddingDim = 64

// FakeEmbedder hashes lower-cased words into a bag-of-words vector, so texts
// sharing words are similar.
type FakeEmbedder struct {
	mu            sync.Mutex
	QueryCalls    int
	DocumentCalls int
	Err           error
}

func (e *FakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.DocumentCalls++
	e.mu.Unlock()
	if e.Err != nil {
		return nil, e.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = Vector(t)
	}
	return out, nil
}

func (e *FakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.QueryCalls++
	e.mu.Unlock()
	if e.Err != nil {
		return nil, e.Err
	}
	return Vector(text), nil
}

func (e *FakeEmbedder) Calls() (documents, queries int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.DocumentCalls, e.QueryCalls
}

// Vector is the embedding FakeEmbedder produces for text.
func Vector(text string) []float32 {
	v := make([]float32, EmbeddingDim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		v[h.Sum32()%EmbeddingDim]++
	}
	if len(words) == 0 {
		v[0] = 1
	}
	return v
}

// ChatCall records one StreamChat invocation.
type ChatCall struct {
	History []store.Turn
	Prompt  string
}

// FakeModel implements core.ChatModel and core.VisionModel.
type FakeModel struct {
	// Reply produces the fragments for a prompt. Defaults to echoing the prompt.
	Reply func(history []store.Turn, prompt string) []core.Fragment
	// Hold, if set, delays the first fragment until it is closed.
	Hold  chan struct{}

	Vision    func(format string, data []byte, query string) (string, error)
	mu        sync.Mutex
	chats     []ChatCall
	imageFmts []string
}

func (m *FakeModel) StreamChat(ctx context.Context, history []store.Turn, prompt string) <-chan core.Fragment {
	m.mu.Lock()
	m.chats = append(m.chats, ChatCall{History: append([]store.Turn(nil), history...), Prompt: prompt})
	m.mu.Unlock()

	reply := m.Reply
	if reply == nil {
		reply = func(_ []store.Turn, prompt string) []core.Fragment {
			return []core.Fragment{{Text: "echo: "}, {Text: prompt}}
		}
	}
	fragments := reply(history, prompt)

	out := make(chan core.Fragment)
	go func() {
		defer close(out)
		if m.Hold != nil {
			select {
			case <-m.Hold:
			case <-ctx.Done():
				return
			}
		}
		for _, f := range fragments {
			select {
			case out <- f:
			case <-ctx.Done():
				return
			}
			if f.Err != nil {
				return
			}
		}
	}()
	return out
}

func (m *FakeModel) DescribeImage(_ context.Context, format string, data []byte, query string) (string, error) {
	m.mu.Lock()
	m.imageFmts = append(m.imageFmts, format)
	m.mu.Unlock()
	if m.Vision == nil {
		return "an image (" + format + ") answering: " + query, nil
	}
	return m.Vision(format, data, query)
}

func (m *FakeModel) ChatCalls() []ChatCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ChatCall(nil), m.chats...)
}

func (m *FakeModel) ImageFormats() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.imageFmts...)
}

// Collect drains a fragment channel into its text and the terminal error, if any.
func Collect(ch <-chan core.Fragment) (string, error) {
	var b strings.Builder
	for f := range ch {
		if f.Err != nil {
			return b.String(), f.Err
		}
		b.WriteString(f.Text)
	}
	return b.String(), nil
}
