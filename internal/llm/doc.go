// Package llm defines the text generation contract used to turn a user's
// trading idea into a strategy description. Provider adapters live in
// subpackages.
package llm
