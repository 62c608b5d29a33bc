// Package persistence contains helpers shared by store implementations.
package persistence

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Bhavikpatel576/timely/internal/domain"
)

// EncodeCursor serialises the cursor to an opaque token.
func EncodeCursor(c *domain.Cursor) string {
	if c == nil {
		return ""
	}
	raw := fmt.Sprintf("%s|%d", c.Timestamp.UTC().Format(time.RFC3339Nano), c.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by EncodeCursor. An empty token yields nil.
func DecodeCursor(token string) (*domain.Cursor, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, &domain.ValidationError{Field: "cursor", Reason: "malformed token"}
	}
	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 {
		return nil, &domain.ValidationError{Field: "cursor", Reason: "malformed token"}
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return nil, &domain.ValidationError{Field: "cursor", Reason: "malformed timestamp"}
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, &domain.ValidationError{Field: "cursor", Reason: "malformed id"}
	}
	return &domain.Cursor{Timestamp: ts, ID: id}, nil
}
