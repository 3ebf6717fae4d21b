package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DefaultFolder is used for empty output roots and subfolders
const DefaultFolder = "default"

// ModifierType places a prompt modifier before or after the card prompt
type ModifierType string

const (
	ModifierPrefix ModifierType = "prefix"
	ModifierSuffix ModifierType = "suffix"
)

// PromptModifier is a reusable piece of prompt text owned by a project
type PromptModifier struct {
	ID   string       `json:"id"`
	Name string       `json:"name"`
	Text string       `json:"text"`
	Type ModifierType `json:"type"`
}

// Project groups cards that share prompt wrapping and image defaults
type Project struct {
	ID                 string           `json:"id"`
	Name               string           `json:"name"`
	Description        string           `json:"description,omitempty"`
	OutputRoot         string           `json:"outputRoot,omitempty"`
	GlobalPrefix       string           `json:"globalPrefix,omitempty"`
	GlobalSuffix       string           `json:"globalSuffix,omitempty"`
	DefaultAspectRatio string           `json:"defaultAspectRatio,omitempty"`
	DefaultResolution  string           `json:"defaultResolution,omitempty"`
	PromptModifiers    []PromptModifier `json:"promptModifiers,omitempty"`
	CreatedAt          time.Time        `json:"createdAt"`
	UpdatedAt          time.Time        `json:"updatedAt"`
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,127}$`)

// ValidateID checks that an id is safe to embed in a file or directory name
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: invalid id %q (letters, digits, '-' and '_' only)", ErrValidation, id)
	}
	return nil
}

// ValidateName checks a human readable entity name
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrValidation)
	}
	if len(name) > 200 {
		return fmt.Errorf("%w: name too long (max 200 characters)", ErrValidation)
	}
	return nil
}

// OutputFolder returns the output root fragment, defaulting when unset
func (p *Project) OutputFolder() string {
	if strings.TrimSpace(p.OutputRoot) == "" {
		return DefaultFolder
	}
	return p.OutputRoot
}

// Validate checks the fields required to persist a project
func (p *Project) Validate() error {
	if err := ValidateID(p.ID); err != nil {
		return err
	}
	if err := ValidateName(p.Name); err != nil {
		return err
	}
	for _, m := range p.PromptModifiers {
		if m.Type != ModifierPrefix && m.Type != ModifierSuffix {
			return fmt.Errorf("%w: modifier %q has unknown type %q", ErrValidation, m.Name, m.Type)
		}
	}
	return nil
}

// Modifiers returns the prompt modifiers of a given type in declared order
func (p *Project) Modifiers(t ModifierType) []PromptModifier {
	var out []PromptModifier
	for _, m := range p.PromptModifiers {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

// NewProject creates a project with defaults applied
func NewProject(id, name string) (*Project, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Project{
		ID:         id,
		Name:       name,
		OutputRoot: GenerateSlug(name),
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// GenerateSlug creates a directory friendly slug from a name
// Converts "Tarot Deck v2" -> "tarot-deck-v2"
func GenerateSlug(name string) string {
	slug := strings.ToLower(name)

	reg := regexp.MustCompile(`[^a-z0-9]+`)
	slug = reg.ReplaceAllString(slug, "-")

	slug = strings.Trim(slug, "-")

	if slug == "" {
		return DefaultFolder
	}
	return slug
}
