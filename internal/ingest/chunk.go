package ingest

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Chunker splits a heading's raw text into token-bounded, overlapping
// windows for content embedding (§4.4).
type Chunker struct {
	encoding     *tiktoken.Tiktoken
	chunkSize    int
	chunkOverlap int
}

func NewChunker(chunkSize, chunkOverlap int) (*Chunker, error) {
	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("load tokenizer encoding: %w", err)
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 4
	}
	return &Chunker{encoding: encoding, chunkSize: chunkSize, chunkOverlap: chunkOverlap}, nil
}

// Split returns token-bounded text windows advancing by (chunkSize -
// chunkOverlap) tokens each step, so consecutive chunks share chunkOverlap
// tokens of context.
func (c *Chunker) Split(text string) []string {
	if text == "" {
		return nil
	}
	tokens := c.encoding.Encode(text, nil, nil)
	if len(tokens) == 0 {
		return nil
	}
	if len(tokens) <= c.chunkSize {
		return []string{text}
	}

	stride := c.chunkSize - c.chunkOverlap
	if stride <= 0 {
		stride = c.chunkSize
	}

	var out []string
	for start := 0; start < len(tokens); start += stride {
		end := start + c.chunkSize
		if end > len(tokens) {
			end = len(tokens)
		}
		out = append(out, c.encoding.Decode(tokens[start:end]))
		if end == len(tokens) {
			break
		}
	}
	return out
}
