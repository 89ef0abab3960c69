package core

import (
	"context"

	"gwi.com/rag-chat/internal/store"
)

// Fragment is one piece of streamed model output. A fragment with a non-nil
// Err is always the last one on its channel.
type Fragment struct {
	Text string
	Err  error
}

// ChatModel continues a conversation. The returned channel is closed when the
// model finishes, after the first error, or once ctx is done.
type ChatModel interface {
	StreamChat(ctx context.Context, history []store.Turn, prompt string) <-chan Fragment
}

// VisionModel answers a question about a single image. format is the image
// subtype understood by the model ("jpeg", "png", "webp").
type VisionModel interface {
	DescribeImage(ctx context.Context, format string, data []byte, query string) (string, error)
}

// send delivers f unless ctx is done first.
func send(ctx context.Context, out chan<- Fragment, f Fragment) bool {
	select {
	case out <- f:
		return true
	case <-ctx.Done():
		return false
	}
}
