package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"gwi.com/rag-chat/internal/store"
)

type ChatService struct {
	sessions         store.SessionStore
	ragService       *RAGService
	model            ChatModel
	retrievalK       int
	defaultSessionID string
	locks            *sessionLocks
}

func NewChatService(sessions store.SessionStore, rag *RAGService, model ChatModel, retrievalK int, defaultSessionID string) *ChatService {
	return &ChatService{
		sessions:         sessions,
		ragService:       rag,
		model:            model,
		retrievalK:       retrievalK,
		defaultSessionID: defaultSessionID,
		locks:            newSessionLocks(),
	}
}

func (s *ChatService) sessionID(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return s.defaultSessionID
}

// Chat sends query to the model within the given session and streams the
// reply. With useRAG the query is wrapped with retrieved context when any is
// found. The user and model turns are recorded only when the stream
// completes; the session stays locked until then.
func (s *ChatService) Chat(ctx context.Context, sessionID, query string, useRAG bool) (<-chan Fragment, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	sessionID = s.sessionID(sessionID)
	logger := log.Ctx(ctx).With().Str("session_id", sessionID).Logger()

	release, err := s.locks.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	prompt := query
	if useRAG {
		ragContext, err := s.ragService.RetrieveContext(ctx, query, s.retrievalK)
		if err != nil {
			release()
			return nil, fmt.Errorf("failed to retrieve context: %w", err)
		}
		if ragContext != "" {
			prompt = BuildRAGPrompt(ragContext, query)
		} else {
			logger.Debug().Msg("No context found, sending raw query")
		}
	}

	history, err := s.sessions.History(ctx, sessionID)
	if err != nil {
		release()
		return nil, fmt.Errorf("failed to load session history: %w", err)
	}

	upstream := s.model.StreamChat(ctx, history, prompt)
	out := make(chan Fragment)
	go func() {
		defer release()
		defer close(out)

		var reply strings.Builder
		for f := range upstream {
			if f.Err != nil {
				send(ctx, out, f)
				return
			}
			if f.Text == "" {
				continue
			}
			reply.WriteString(f.Text)
			if !send(ctx, out, f) {
				logger.Info().Msg("Chat stream cancelled by client")
				return
			}
		}
		if ctx.Err() != nil {
			logger.Info().Msg("Chat stream cancelled before completion")
			return
		}

		err := s.sessions.Append(context.WithoutCancel(ctx), sessionID,
			store.Turn{Role: store.RoleUser, Content: prompt},
			store.Turn{Role: store.RoleModel, Content: reply.String()},
		)
		if err != nil {
			send(ctx, out, Fragment{Err: fmt.Errorf("failed to save chat turns: %w", err)})
			return
		}
		logger.Debug().Int("reply_len", reply.Len()).Msg("Chat turn stored")
	}()
	return out, nil
}

// History returns the recorded turns of a session.
func (s *ChatService) History(ctx context.Context, sessionID string) (string, []store.Turn, error) {
	sessionID = s.sessionID(sessionID)
	turns, err := s.sessions.History(ctx, sessionID)
	if err != nil {
		return sessionID, nil, fmt.Errorf("failed to load session history: %w", err)
	}
	return sessionID, turns, nil
}
