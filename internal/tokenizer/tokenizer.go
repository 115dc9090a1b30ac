// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package tokenizer wraps a cl100k-compatible BPE encoding so the
// chunker can measure and split text in tokens rather than characters.
package tokenizer

import (
	"fmt"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Encoder counts and slices text by token, not byte.
type Encoder struct {
	enc *tiktoken.Tiktoken
}

var (
	shared     *Encoder
	sharedOnce sync.Once
	sharedErr  error
)

// New loads the cl100k_base encoding used by the embedding and chat
// models this service talks to.
func New() (*Encoder, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to load cl100k_base encoding: %w", err)
	}
	return &Encoder{enc: enc}, nil
}

// Default returns a process-wide Encoder, loading it on first use.
// The BPE rank table is read-only once built, so sharing it is safe.
func Default() (*Encoder, error) {
	sharedOnce.Do(func() {
		shared, sharedErr = New()
	})
	return shared, sharedErr
}

// Count returns the number of tokens text encodes to.
func (e *Encoder) Count(text string) int {
	return len(e.enc.Encode(text, nil, nil))
}

// Encode returns the token ids for text.
func (e *Encoder) Encode(text string) []int {
	return e.enc.Encode(text, nil, nil)
}

// Decode renders token ids back to text.
func (e *Encoder) Decode(tokens []int) string {
	return e.enc.Decode(tokens)
}

// Tail returns the decoded text of the last n tokens of text (or all
// of it if it has fewer than n tokens).
func (e *Encoder) Tail(text string, n int) string {
	tokens := e.Encode(text)
	if n >= len(tokens) {
		return text
	}
	return e.Decode(tokens[len(tokens)-n:])
}
