package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound marks an unknown block id. Mutation paths may surface it
	// benignly when they race the optimizer's compression pass.
	ErrNotFound = errors.New("memory block not found")

	// ErrNotInitialized is returned by orchestrator operations invoked
	// before Initialize.
	ErrNotInitialized = errors.New("memory engine not initialized")

	// ErrStoreNotEmpty guards restore against clobbering live data unless
	// the caller opts into overwriting.
	ErrStoreNotEmpty = errors.New("store is not empty")
)

// ValidationError reports a malformed memory block or backup snapshot.
type ValidationError struct {
	Subject  string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Subject, strings.Join(e.Problems, "; "))
}

// ValidateBlock checks the structural invariants of a block before it is
// persisted or replayed from a snapshot.
func ValidateBlock(b *MemoryBlock) error {
	var problems []string
	if b.ID == "" {
		problems = append(problems, "missing id")
	}
	if !b.Tier.Valid() {
		problems = append(problems, fmt.Sprintf("unknown tier %q", b.Tier))
	}
	if b.Content == "" {
		problems = append(problems, "empty content")
	}
	if s := b.Metadata.RelevanceScore; s < 0 || s > 1 {
		problems = append(problems, fmt.Sprintf("relevance score %v outside [0,1]", s))
	}
	if b.Metadata.AccessCount < 0 {
		problems = append(problems, "negative access count")
	}
	if len(problems) > 0 {
		return &ValidationError{Subject: "memory block", Problems: problems}
	}
	return nil
}
