package coach

import (
	"context"

	"github.com/fitcheckhq/fitcheck/backend/internal/llm"
)

// ClientStreamer adapts *llm.Client to the Streamer interface, which
// *llm.Client cannot satisfy directly because StreamChat returns the
// concrete stream type.
type ClientStreamer struct {
	Client *llm.Client
}

func (c ClientStreamer) StreamChat(ctx context.Context, messages []llm.Message) (DeltaStream, error) {
	stream, err := c.Client.StreamChat(ctx, messages)
	if err != nil {
		return nil, err
	}
	return stream, nil
}
