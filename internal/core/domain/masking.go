package domain

import (
	"crypto/sha256"
	"fmt"
)

// MaskType is a column masking strategy applied to executed query results
// for roles that may run a query but must not see a column in the clear.
type MaskType string

const (
	MaskRedact  MaskType = "redact"
	MaskHash    MaskType = "hash"
	MaskPartial MaskType = "partial"
	MaskNull    MaskType = "null"
)

// Valid reports whether m is a recognised masking strategy. The zero value
// "" means "no mask" and is valid.
func (m MaskType) Valid() bool {
	switch m {
	case MaskRedact, MaskHash, MaskPartial, MaskNull, "":
		return true
	}
	return false
}

// ApplyMask transforms a value according to the mask type. Masked values
// may change type (hash/partial always yield strings). MaskNull returns
// nil, indistinguishable from SQL NULL.
func ApplyMask(value any, maskType MaskType) any {
	if value == nil {
		return nil
	}

	switch maskType {
	case MaskRedact:
		return "***"
	case MaskHash:
		s := fmt.Sprintf("%v", value)
		h := sha256.Sum256([]byte(s))
		return fmt.Sprintf("%x", h)
	case MaskPartial:
		return maskPartial(value)
	case MaskNull:
		return nil
	default:
		return value
	}
}

// maskPartial reveals only the last 4 characters. Multi-byte strings are
// handled rune-wise.
func maskPartial(value any) string {
	s := fmt.Sprintf("%v", value)
	runes := []rune(s)
	if len(runes) <= 4 {
		return "***" + s
	}
	masked := make([]rune, len(runes))
	for i := range masked {
		if i < len(runes)-4 {
			masked[i] = '*'
		} else {
			masked[i] = runes[i]
		}
	}
	return string(masked)
}

// MaskRows applies a role's column masks to result rows in place. The
// aliases map (original column name -> SELECT alias) lets masks follow
// columns that were renamed in the query's target list; pass nil when no
// aliasing information is available.
func MaskRows(rows []map[string]any, masks map[string]MaskType, aliases map[string]string) {
	if len(masks) == 0 {
		return
	}
	for _, row := range rows {
		for col, maskType := range masks {
			key := col
			if alias, ok := aliases[col]; ok {
				key = alias
			}
			if val, exists := row[key]; exists {
				row[key] = ApplyMask(val, maskType)
			}
		}
	}
}
