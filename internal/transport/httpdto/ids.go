package httpdto

import (
	"strings"

	salon_errors "salon-chat/pkg/errors"

	"github.com/google/uuid"
)

// ParseID parses a path or body identifier, naming the field on failure.
func ParseID(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, salon_errors.Validation("invalid %s", field)
	}
	return id, nil
}

func ParseIDs(raw []string, field string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		id, err := ParseID(r, field)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
