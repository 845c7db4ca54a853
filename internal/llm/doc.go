// Package llm implements the second categorization pass. A Categorizer asks a
// language model to choose a category from the taxonomy when rule signals are
// not conclusive. Provider clients speak plain HTTP; responses are parsed
// tolerantly and cached per transaction fingerprint.
package llm
