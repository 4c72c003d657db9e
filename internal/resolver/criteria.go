package resolver

import (
	"fmt"

	"midisession/internal/textutil"
	"midisession/internal/transport"
)

// CriterionKind selects how a Criterion matches endpoints.
type CriterionKind int

const (
	KindUniqueID CriterionKind = iota
	KindName
	KindDisplayName
	KindUniqueIDWithFallback
)

func (k CriterionKind) String() string {
	switch k {
	case KindUniqueID:
		return "unique_id"
	case KindName:
		return "name"
	case KindDisplayName:
		return "display_name"
	case KindUniqueIDWithFallback:
		return "unique_id_with_fallback"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Criterion is one endpoint match rule.
type Criterion struct {
	Kind CriterionKind
	ID   transport.UniqueID
	Name string
}

func ByUniqueID(id transport.UniqueID) Criterion {
	return Criterion{Kind: KindUniqueID, ID: id}
}

func ByName(name string) Criterion {
	return Criterion{Kind: KindName, Name: name}
}

func ByDisplayName(name string) Criterion {
	return Criterion{Kind: KindDisplayName, Name: name}
}

// ByUniqueIDWithFallback matches id first. displayName is only consulted
// when id is invalid or no endpoint currently carries it.
func ByUniqueIDWithFallback(id transport.UniqueID, displayName string) Criterion {
	return Criterion{Kind: KindUniqueIDWithFallback, ID: id, Name: displayName}
}

func (c Criterion) String() string {
	switch c.Kind {
	case KindUniqueID:
		return fmt.Sprintf("unique_id=%d", c.ID)
	case KindName:
		return fmt.Sprintf("name=%q", c.Name)
	case KindDisplayName:
		return fmt.Sprintf("display_name=%q", c.Name)
	case KindUniqueIDWithFallback:
		return fmt.Sprintf("unique_id=%d|display_name=%q", c.ID, c.Name)
	}
	return c.Kind.String()
}

// match returns the endpoints in candidates that c selects.
func (c Criterion) match(candidates []transport.EndpointRecord) []transport.EndpointRecord {
	var out []transport.EndpointRecord
	switch c.Kind {
	case KindUniqueID:
		if !c.ID.Valid() {
			return nil
		}
		for _, ep := range candidates {
			if ep.UniqueID == c.ID {
				out = append(out, ep)
			}
		}
	case KindName:
		for _, ep := range candidates {
			if textutil.SameName(ep.Name, c.Name) {
				out = append(out, ep)
			}
		}
	case KindDisplayName:
		for _, ep := range candidates {
			if textutil.SameName(ep.DisplayName, c.Name) {
				out = append(out, ep)
			}
		}
	case KindUniqueIDWithFallback:
		if out = ByUniqueID(c.ID).match(candidates); len(out) > 0 {
			return out
		}
		if c.Name == "" {
			return nil
		}
		return ByDisplayName(c.Name).match(candidates)
	}
	return out
}

// Matches reports whether c selects ep when ep is considered on its own.
func (c Criterion) Matches(ep transport.EndpointRecord) bool {
	return len(c.match([]transport.EndpointRecord{ep})) == 1
}

// Mode selects between a criteria set and every endpoint.
type Mode int

const (
	// ModeCriteria binds endpoints matched by the connection's criteria,
	// re-evaluated on every topology change.
	ModeCriteria Mode = iota
	// ModeAll binds every endpoint of the opposite direction.
	ModeAll
)

func (m Mode) String() string {
	if m == ModeAll {
		return "all"
	}
	return "criteria"
}

// ParseMode maps a config mode string to a Mode.
func ParseMode(value string) (Mode, error) {
	switch value {
	case "", "criteria":
		return ModeCriteria, nil
	case "all":
		return ModeAll, nil
	}
	return ModeCriteria, fmt.Errorf("unknown connection mode %q", value)
}

// Filter trims the resolved set.
type Filter struct {
	// Owned keeps endpoints created by the local manager. Leaving it false
	// prevents a session from feeding its own output back into itself.
	Owned bool
	// Exclude drops any endpoint one of these criteria selects.
	Exclude []Criterion
}

// DefaultFilter excludes owned endpoints and nothing else.
func DefaultFilter() Filter {
	return Filter{}
}
