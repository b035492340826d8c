package llm

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const defaultEncoding = "cl100k_base"

// TokenCounter estimates token counts when a provider reports no usage.
type TokenCounter interface {
	Count(text string) int
}

// HeuristicCounter assumes roughly four bytes per token.
type HeuristicCounter struct{}

func (HeuristicCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(text)/4 + 1
}

// TiktokenCounter counts with the BPE encoding of a model.
type TiktokenCounter struct {
	mu  sync.Mutex
	tke *tiktoken.Tiktoken
}

// NewTiktokenCounter resolves the encoding for model, falling back to cl100k_base.
// Encodings are fetched on first use, so this may touch the network.
func NewTiktokenCounter(model string) (*TiktokenCounter, error) {
	tke, err := tiktoken.EncodingForModel(model)
	if err != nil {
		tke, err = tiktoken.GetEncoding(defaultEncoding)
		if err != nil {
			return nil, fmt.Errorf("load encoding %s: %w", defaultEncoding, err)
		}
	}
	return &TiktokenCounter{tke: tke}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tke.Encode(text, nil, nil))
}
