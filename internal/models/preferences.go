package models

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var ErrIdentityRequired = errors.New("self identity must be set before matching")

// UserPreferences is captured once per browsing session during onboarding.
// An empty DesiredIdentities set means "match anyone".
type UserPreferences struct {
	SelfIdentity      *IdentityTag  `json:"self_identity" validate:"required,identity"`
	DesiredIdentities []IdentityTag `json:"desired_identities" validate:"omitempty,dive,identity"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("identity", func(fl validator.FieldLevel) bool {
		return IdentityTag(fl.Field().String()).Valid()
	})
	return v
}

// Validate checks the struct tags and normalizes the desired set (dedupe).
func (p *UserPreferences) Validate() error {
	if p.SelfIdentity == nil {
		return ErrIdentityRequired
	}
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid preferences: %w", err)
	}
	if len(p.DesiredIdentities) == 0 {
		return nil
	}
	seen := make(map[IdentityTag]bool, len(p.DesiredIdentities))
	uniq := make([]IdentityTag, 0, len(p.DesiredIdentities))
	for _, tag := range p.DesiredIdentities {
		if seen[tag] {
			continue
		}
		seen[tag] = true
		uniq = append(uniq, tag)
	}
	p.DesiredIdentities = uniq
	return nil
}

// HasIdentity reports whether the caller may start matching.
func (p *UserPreferences) HasIdentity() bool {
	return p != nil && p.SelfIdentity != nil && p.SelfIdentity.Valid()
}

// Accepts reports whether a counterpart with tag passes the desired filter.
func (p *UserPreferences) Accepts(tag IdentityTag) bool {
	if p == nil || len(p.DesiredIdentities) == 0 {
		return true
	}
	for _, want := range p.DesiredIdentities {
		if want == tag {
			return true
		}
	}
	return false
}

// Compatible reports whether two sessions accept each other.
func Compatible(a, b *UserPreferences) bool {
	if !a.HasIdentity() || !b.HasIdentity() {
		return false
	}
	return a.Accepts(*b.SelfIdentity) && b.Accepts(*a.SelfIdentity)
}
