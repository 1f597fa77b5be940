// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

// Package normalize runs the ordered text-normalization pipeline the
// dispatcher applies before computing a variant hash (spec §4.8.a,
// "Normalize text"). The pipeline shape is generalized from the teacher's
// per-provider TextNormalizer pipelines (e.g.
// internal/transformer/openai/normalizer.go's `normalizers []Normalizer`
// field) down to one pre-hash stage shared by every adapter, since hashing
// happens once in the dispatcher rather than once per TTS vendor.
package normalize

import (
	"regexp"
	"strconv"
	"strings"

	numbertowords "moul.io/number-to-words"
)

// Stage is one step of the normalization pipeline.
type Stage interface {
	Apply(text string) string
}

var markdownEmphasis = regexp.MustCompile(`[*_` + "`" + `~]+`)
var whitespaceRun = regexp.MustCompile(`\s+`)
var standaloneInteger = regexp.MustCompile(`\b\d{1,9}\b`)

// stripMarkdown removes the lightweight emphasis markers a document block
// may still carry (the document ingestion pipeline is out of scope, but
// blocks arrive as near-plain-text markdown fragments in practice).
type stripMarkdown struct{}

func (stripMarkdown) Apply(text string) string {
	return markdownEmphasis.ReplaceAllString(text, "")
}

// collapseWhitespace folds runs of whitespace (including newlines) into a
// single space and trims the ends, so "hello\n\n world" and "hello world"
// fingerprint identically.
type collapseWhitespace struct{}

func (collapseWhitespace) Apply(text string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
}

// expandNumbers spells out small standalone integers so "I have 2 apples"
// and "I have two apples" — which most TTS vendors render identically —
// dedupe onto the same variant hash.
type expandNumbers struct{}

func (expandNumbers) Apply(text string) string {
	return standaloneInteger.ReplaceAllStringFunc(text, func(m string) string {
		n, err := strconv.Atoi(m)
		if err != nil {
			return m
		}
		return numbertowords.IntegerToString(n)
	})
}

// DefaultPipeline is the stage order applied to every block before hashing.
func DefaultPipeline() []Stage {
	return []Stage{
		stripMarkdown{},
		expandNumbers{},
		collapseWhitespace{},
	}
}

// Text runs the default pipeline end to end and lower-cases the result —
// TTS vendors are case-insensitive to input casing for prosody purposes,
// so folding case keeps "Hello" and "hello" on the same cache entry.
func Text(raw string) string {
	out := raw
	for _, stage := range DefaultPipeline() {
		out = stage.Apply(out)
	}
	return strings.ToLower(out)
}
