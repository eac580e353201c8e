package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

// ErrForeignCursor is returned when a cursor issued for one store is replayed
// against another.
var ErrForeignCursor = errors.New("cursor belongs to a different store")

// Params holds cursor pagination inputs from controllers or services.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor is the last row of a page in (created_at DESC, id DESC) order, bound
// to the store whose listing produced it.
type Cursor struct {
	StoreID   uuid.UUID
	CreatedAt time.Time
	ID        uuid.UUID
}

// Page is a trimmed page of rows plus the cursor for the next one.
type Page[T any] struct {
	Rows []T
	Next *Cursor
}

func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, MaxLimit)
}

// LimitWithBuffer asks for one extra row to detect a next page.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

// Trim cuts rows fetched with LimitWithBuffer down to the page size and, when
// a further row exists, returns the cursor of the last kept row.
func Trim[T any](storeID uuid.UUID, rows []T, limit int, key func(T) (time.Time, uuid.UUID)) Page[T] {
	limit = NormalizeLimit(limit)
	if len(rows) <= limit {
		return Page[T]{Rows: rows}
	}
	rows = rows[:limit]
	createdAt, id := key(rows[limit-1])
	return Page[T]{Rows: rows, Next: &Cursor{StoreID: storeID, CreatedAt: createdAt, ID: id}}
}

// Encode renders the cursor as a URL-safe token for ?cursor=.
func (c Cursor) Encode() string {
	payload := strings.Join([]string{c.StoreID.String(), c.CreatedAt.UTC().Format(time.RFC3339Nano), c.ID.String()}, "|")
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

// ParseCursor decodes a token for storeID. A blank token means the first page.
func ParseCursor(value string, storeID uuid.UUID) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	parts := strings.Split(string(decoded), "|")
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid cursor format")
	}
	scope, err := uuid.Parse(parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid cursor store: %w", err)
	}
	if scope != storeID {
		return nil, ErrForeignCursor
	}
	createdAt, err := time.Parse(time.RFC3339Nano, parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid cursor timestamp: %w", err)
	}
	id, err := uuid.Parse(parts[2])
	if err != nil {
		return nil, fmt.Errorf("invalid cursor id: %w", err)
	}
	return &Cursor{StoreID: scope, CreatedAt: createdAt, ID: id}, nil
}
