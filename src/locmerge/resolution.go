package locmerge

import (
	"fmt"

	"github.com/locvc/locvc/src/branches"
)

// ResolutionKind discriminates the closed set of resolution variants.
type ResolutionKind uint8

const (
	// KindKeepSource takes the source side of the conflict.
	KindKeepSource = ResolutionKind(iota + 1)
	// KindKeepTarget leaves the target cell untouched.
	KindKeepTarget
	// KindManual replaces the cell with operator-supplied text.
	KindManual
)

func (k ResolutionKind) String() string {
	switch k {
	case KindKeepSource:
		return "KEEP_SOURCE"
	case KindKeepTarget:
		return "KEEP_TARGET"
	case KindManual:
		return "MANUAL"
	default:
		return fmt.Sprintf("ResolutionKind(INVALID, %d)", uint8(k))
	}
}

func (k ResolutionKind) MarshalText() ([]byte, error) {
	switch k {
	case KindKeepSource, KindKeepTarget, KindManual:
		return []byte(k.String()), nil
	default:
		return nil, fmt.Errorf("invalid resolution kind %d", uint8(k))
	}
}

func (k *ResolutionKind) UnmarshalText(data []byte) error {
	switch string(data) {
	case "KEEP_SOURCE":
		*k = KindKeepSource
	case "KEEP_TARGET":
		*k = KindKeepTarget
	case "MANUAL":
		*k = KindManual
	default:
		return fmt.Errorf("invalid resolution kind %q", data)
	}
	return nil
}

// Resolution decides one conflicted cell. Construct with KeepSource,
// KeepTarget, or Manual; the zero value is invalid.
type Resolution struct {
	Kind ResolutionKind `json:"kind"`
	// Text is the replacement value, set for Manual only. Manual on a
	// delete conflict resurrects the cell with this text.
	Text *string `json:"text,omitempty"`
}

func KeepSource() Resolution {
	return Resolution{Kind: KindKeepSource}
}

func KeepTarget() Resolution {
	return Resolution{Kind: KindKeepTarget}
}

func Manual(text string) Resolution {
	return Resolution{Kind: KindManual, Text: &text}
}

func (r Resolution) Validate() error {
	switch r.Kind {
	case KindKeepSource, KindKeepTarget:
		if r.Text != nil {
			return branches.ErrValidation{Reason: fmt.Sprintf("resolution %v does not take text", r.Kind)}
		}
	case KindManual:
		if r.Text == nil {
			return branches.ErrValidation{Reason: "manual resolution requires text"}
		}
	default:
		return branches.ErrValidation{Reason: fmt.Sprintf("invalid resolution kind %d", uint8(r.Kind))}
	}
	return nil
}

// ResolvedCell records which resolution was chosen for a cell. Merge
// commits carry these so a merge can be audited after the fact.
type ResolvedCell struct {
	Cell       branches.Cell `json:"cell"`
	Resolution Resolution    `json:"resolution"`
}
