package security

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Request body limits.
const (
	DefaultMaxBodySize  = 64 << 10 // 64 KiB
	DefaultMaxJSONDepth = 8
)

// Validation errors.
var (
	ErrBodyTooLarge = errors.New("request body exceeds maximum size")
	ErrJSONTooDeep  = errors.New("JSON nesting exceeds maximum depth")
	ErrInvalidJSON  = errors.New("invalid JSON")
)

// DecodeJSON reads at most limit bytes from r, checks nesting depth, and
// decodes the document into v. A limit <= 0 uses DefaultMaxBodySize.
func DecodeJSON(r io.Reader, limit int, v any) error {
	if limit <= 0 {
		limit = DefaultMaxBodySize
	}
	data, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}
	if len(data) > limit {
		return fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, limit)
	}
	if err := ValidateJSONDepth(data, DefaultMaxJSONDepth); err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}
	return nil
}

// ValidateJSONDepth checks that the JSON in data does not nest deeper
// than limit levels. If limit is <= 0, DefaultMaxJSONDepth is used.
func ValidateJSONDepth(data []byte, limit int) error {
	if limit <= 0 {
		limit = DefaultMaxJSONDepth
	}
	if len(data) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
		}

		switch tok {
		case json.Delim('{'), json.Delim('['):
			depth++
			if depth > limit {
				return fmt.Errorf("%w: depth %d (max %d)", ErrJSONTooDeep, depth, limit)
			}
		case json.Delim('}'), json.Delim(']'):
			depth--
		}
	}
}
