package domain

import (
	"strings"
	"unicode/utf8"
)

// CanWrite reports whether userID may mutate the board: owner or any member.
// Visibility never widens write access.
func CanWrite(b Board, userID string) bool {
	if userID == "" {
		return false
	}
	if b.OwnerID == userID {
		return true
	}
	_, ok := b.RoleOf(userID)
	return ok
}

// CanView reports whether userID may read the board. Private boards are
// restricted to owner and members; other boards are readable by anyone
// authenticated.
func CanView(b Board, userID string) bool {
	if b.Visibility == VisibilityPrivate {
		return CanWrite(b, userID)
	}
	return userID != ""
}

const (
	maxBoardTitle       = 100
	maxBoardDescription = 500
	maxListTitle        = 100
	maxCardTitle        = 200
	maxCardDescription  = 2000
	maxCommentText      = 1000
	maxTag              = 50
	maxTags             = 20
)

func requireText(field, v string, max int) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", invalid(field, "is required")
	}
	if utf8.RuneCountInString(v) > max {
		return "", invalid(field, "is too long")
	}
	return v, nil
}

func optionalText(field, v string, max int) (string, error) {
	v = strings.TrimSpace(v)
	if utf8.RuneCountInString(v) > max {
		return "", invalid(field, "is too long")
	}
	return v, nil
}

// tagList trims and dedupes label or assignee values. An empty input yields
// an empty, non-nil slice so an update can clear the field.
func tagList(field string, vs []string) ([]string, error) {
	out := make([]string, 0, len(vs))
	seen := make(map[string]bool, len(vs))
	for _, v := range vs {
		v = strings.TrimSpace(v)
		if v == "" {
			return nil, invalid(field, "must not contain empty values")
		}
		if utf8.RuneCountInString(v) > maxTag {
			return nil, invalid(field, "value is too long")
		}
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	if len(out) > maxTags {
		return nil, invalid(field, "has too many values")
	}
	return out, nil
}

func requireID(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return invalid(field, "is required")
	}
	return nil
}

func checkPosition(p float64) error {
	if !ValidPosition(p) {
		return invalid("position", "must be a finite number greater than zero")
	}
	return nil
}
