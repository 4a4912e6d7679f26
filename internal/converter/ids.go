package converter

import (
	"fmt"
	"strings"

	"github.com/deepaksharma/haystack-span-converter/internal/zipkinv2"
	"go.uber.org/zap"
)

// idWidth is the number of hex characters in a 64-bit id.
const idWidth = 16

// FormatID lower-cases a hex id and left-pads it with zeros to 16 characters.
// Longer ids keep their rightmost 16 characters. The id must already be
// hexadecimal, Convert rejects anything else before formatting.
func FormatID(id string) string {
	id = strings.ToLower(id)
	if len(id) >= idWidth {
		return id[len(id)-idWidth:]
	}
	return strings.Repeat("0", idWidth-len(id)) + id
}

type spanIDs struct {
	traceID  string
	spanID   string
	parentID string
}

// formatIDs validates and formats the identifiers of a span. A parent equal to the
// span itself is dropped.
func (c *Converter) formatIDs(in zipkinv2.InputSpan) (spanIDs, error) {
	traceID, err := c.formatRequiredID("traceId", in.TraceID)
	if err != nil {
		return spanIDs{}, err
	}
	spanID, err := c.formatRequiredID("id", in.ID)
	if err != nil {
		return spanIDs{}, err
	}

	ids := spanIDs{traceID: traceID, spanID: spanID}
	if in.ParentID == "" {
		return ids, nil
	}
	parentID, err := c.formatID("parentId", in.ParentID)
	if err != nil {
		return spanIDs{}, err
	}
	if parentID != spanID {
		ids.parentID = parentID
	}
	return ids, nil
}

func (c *Converter) formatRequiredID(field, id string) (string, error) {
	if id == "" {
		return "", &ValidationError{Field: field, Reason: "is required"}
	}
	return c.formatID(field, id)
}

func (c *Converter) formatID(field, id string) (string, error) {
	if !isHex(id) {
		return "", &ValidationError{Field: field, Reason: "is not hexadecimal"}
	}
	if len(id) > idWidth {
		if c.cfg.IDOverflow == IDOverflowReject {
			return "", &ValidationError{
				Field:  field,
				Reason: fmt.Sprintf("has %d hex characters, at most %d are supported", len(id), idWidth),
			}
		}
		c.logger.Debug("Truncating id to its low 64 bits",
			zap.String("field", field),
			zap.String("id", id))
	}
	return FormatID(id), nil
}

func isHex(id string) bool {
	for i := 0; i < len(id); i++ {
		switch c := id[i]; {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
