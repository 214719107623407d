package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownIdentity is returned for values outside the closed tag set.
var ErrUnknownIdentity = errors.New("unknown identity tag")

// IdentityTag is a closed-set self identification used for display and
// partner filtering only.
type IdentityTag string

const (
	Man        IdentityTag = "man"
	Woman      IdentityTag = "woman"
	TransWoman IdentityTag = "trans_woman"
	TransMan   IdentityTag = "trans_man"
	NonBinary  IdentityTag = "non_binary"
	Other      IdentityTag = "other"
)

// AllIdentityTags lists every valid tag in display order.
var AllIdentityTags = []IdentityTag{Man, Woman, TransWoman, TransMan, NonBinary, Other}

// Portuguese ids used by the first web client.
var identityAliases = map[string]IdentityTag{
	"homem":        Man,
	"mulher":       Woman,
	"mulher_trans": TransWoman,
	"homem_trans":  TransMan,
	"nao_binario":  NonBinary,
	"outro":        Other,
}

// ParseIdentityTag normalizes s into a known tag.
func ParseIdentityTag(s string) (IdentityTag, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	tag := IdentityTag(key)
	if tag.Valid() {
		return tag, nil
	}
	if alias, ok := identityAliases[key]; ok {
		return alias, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownIdentity, s)
}

// Valid reports whether t belongs to the closed set.
func (t IdentityTag) Valid() bool {
	for _, known := range AllIdentityTags {
		if t == known {
			return true
		}
	}
	return false
}
