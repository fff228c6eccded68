// Package prompt builds the conversation sent to the model provider.
package prompt

import (
	_ "embed"
	"errors"
	"strings"

	"github.com/n0madic/go-appforge/internal/types"
)

//go:embed system.md
var defaultSystem string

// ErrInvalidInput is returned for an empty or whitespace-only instruction.
var ErrInvalidInput = errors.New("instruction must be a non-empty string")

// DefaultSystem returns the built-in system directive.
func DefaultSystem() string { return defaultSystem }

// Builder produces the two-message conversation for an instruction.
type Builder struct {
	system string
}

// NewBuilder returns a Builder using system as the directive. An empty system
// falls back to the built-in directive.
func NewBuilder(system string) *Builder {
	if strings.TrimSpace(system) == "" {
		system = defaultSystem
	}
	return &Builder{system: system}
}

// Build returns the system directive followed by the instruction verbatim.
func (b *Builder) Build(instruction string) ([]types.ChatMessage, error) {
	if strings.TrimSpace(instruction) == "" {
		return nil, ErrInvalidInput
	}
	return []types.ChatMessage{
		{Role: types.RoleSystem, Content: b.system},
		{Role: types.RoleUser, Content: instruction},
	}, nil
}

// Build uses the built-in directive.
func Build(instruction string) ([]types.ChatMessage, error) {
	return NewBuilder("").Build(instruction)
}
