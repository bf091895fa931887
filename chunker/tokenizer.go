package chunker

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts the tokens of a piece of text.
// Implementations must be deterministic and safe for concurrent use.
type Tokenizer interface {
	Count(text string) int
	Name() string
}

// Words counts whitespace-delimited words.
type Words struct{}

// Count returns the number of words in text.
func (Words) Count(text string) int {
	return len(strings.Fields(text))
}

// Name returns "words".
func (Words) Name() string { return "words" }

// Tiktoken counts BPE tokens with a tiktoken encoding such as cl100k_base.
type Tiktoken struct {
	name string
	enc  *tiktoken.Tiktoken
}

// NewTiktoken loads the named encoding.
// The encoding files are fetched on first use unless a BPE loader was
// installed with tiktoken.SetBpeLoader.
func NewTiktoken(encoding string) (*Tiktoken, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %q: %w", encoding, err)
	}
	return &Tiktoken{name: encoding, enc: enc}, nil
}

// Count returns the number of BPE tokens in text.
func (t *Tiktoken) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// Name returns the encoding name.
func (t *Tiktoken) Name() string { return t.name }

// NewTokenizer returns the tokenizer registered under name.
// "words" (or "") selects Words; anything else is treated as a tiktoken encoding.
func NewTokenizer(name string) (Tokenizer, error) {
	switch name {
	case "", "words":
		return Words{}, nil
	case "cl100k":
		return NewTiktoken("cl100k_base")
	default:
		return NewTiktoken(name)
	}
}
