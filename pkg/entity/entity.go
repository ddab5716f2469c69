// Package entity defines the canonical entity and match model shared by
// every storage backend: entities with aliases and tie-break priorities,
// match candidates scored on a 0-100 scale, and ranked match results.
package entity

import (
	"encoding/json"
	"fmt"
)

// Entity is a canonical resolvable item. Two entities are considered the
// same logical entity when their Values are equal, regardless of label,
// aliases or metadata.
type Entity struct {
	// Value is the canonical resolved form and the entity's identity.
	Value string `json:"value"`

	// Label is an optional concept type such as PERSON, ORG, or GPE.
	Label string `json:"label,omitempty"`

	// Aliases are alternate terms that resolve to this entity.
	// Insertion order is preserved for reproducibility.
	Aliases []string `json:"aliases,omitempty"`

	// Meta is an open attribute bag for fields outside the schema.
	Meta map[string]any `json:"meta,omitempty"`

	// Priority is the tie-break rank. Higher wins, nil means 0,
	// negative values are allowed.
	Priority *int `json:"priority,omitempty"`
}

// New creates an entity with the given canonical value.
func New(value string, aliases ...string) *Entity {
	return &Entity{Value: value, Aliases: aliases}
}

// Rank normalizes Priority so that lower ranks sort first: nil becomes 0
// and higher priorities produce lower ranks.
func (e *Entity) Rank() int {
	if e.Priority == nil {
		return 0
	}
	return -*e.Priority
}

// Less orders entities by (rank, value): higher priority first, value
// breaking remaining ties.
func (e *Entity) Less(other *Entity) bool {
	if e.Rank() != other.Rank() {
		return e.Rank() < other.Rank()
	}
	return e.Value < other.Value
}

// Equal reports whether both entities share the same canonical value.
func (e *Entity) Equal(other *Entity) bool {
	return other != nil && e.Value == other.Value
}

// MetaValue reads an attribute from the Meta bag.
func (e *Entity) MetaValue(key string) (any, bool) {
	if e.Meta == nil {
		return nil, false
	}
	v, ok := e.Meta[key]
	return v, ok
}

// SetMetaValue writes an attribute into the Meta bag, allocating it on
// first use.
func (e *Entity) SetMetaValue(key string, value any) {
	if e.Meta == nil {
		e.Meta = make(map[string]any)
	}
	e.Meta[key] = value
}

// HasAlias reports whether term is one of the entity's aliases.
func (e *Entity) HasAlias(term string) bool {
	for _, a := range e.Aliases {
		if a == term {
			return true
		}
	}
	return false
}

// Merge folds a duplicate add of the same logical entity into e: aliases
// are unioned preserving insertion order, missing meta keys are copied,
// and the higher priority wins.
func (e *Entity) Merge(other *Entity) {
	for _, alias := range other.Aliases {
		if alias != e.Value && !e.HasAlias(alias) {
			e.Aliases = append(e.Aliases, alias)
		}
	}
	for k, v := range other.Meta {
		if _, ok := e.MetaValue(k); !ok {
			e.SetMetaValue(k, v)
		}
	}
	if other.Priority != nil {
		if e.Priority == nil || *other.Priority > *e.Priority {
			p := *other.Priority
			e.Priority = &p
		}
	}
	if e.Label == "" {
		e.Label = other.Label
	}
}

// Terms returns the canonical value followed by all aliases.
func (e *Entity) Terms() []string {
	terms := make([]string, 0, 1+len(e.Aliases))
	terms = append(terms, e.Value)
	terms = append(terms, e.Aliases...)
	return terms
}

// Convert builds an Entity from loosely-typed input: an *Entity passes
// through, a string becomes the value, a slice is (value, aliases...),
// and a map is a full record with unknown keys folded into Meta.
func Convert(item any) (*Entity, error) {
	switch v := item.(type) {
	case *Entity:
		return v, nil
	case Entity:
		return &v, nil
	case string:
		return &Entity{Value: v}, nil
	case []string:
		if len(v) == 0 {
			return nil, fmt.Errorf("entity: empty record")
		}
		return &Entity{Value: v[0], Aliases: append([]string(nil), v[1:]...)}, nil
	case []any:
		if len(v) == 0 {
			return nil, fmt.Errorf("entity: empty record")
		}
		value, ok := v[0].(string)
		if !ok {
			return nil, fmt.Errorf("entity: record value must be a string, got %T", v[0])
		}
		e := &Entity{Value: value}
		for _, raw := range v[1:] {
			alias, ok := raw.(string)
			if !ok {
				return nil, fmt.Errorf("entity: alias must be a string, got %T", raw)
			}
			e.Aliases = append(e.Aliases, alias)
		}
		return e, nil
	case map[string]any:
		return fromRecord(v)
	default:
		return nil, fmt.Errorf("entity: cannot convert %T", item)
	}
}

// fromRecord builds an entity from a record map. The conventional keys
// value/name, label, aliases, meta and priority are recognized; any
// other key lands in Meta.
func fromRecord(rec map[string]any) (*Entity, error) {
	e := &Entity{}
	for key, raw := range rec {
		switch key {
		case "value", "name":
			s, ok := raw.(string)
			if !ok {
				return nil, fmt.Errorf("entity: %q must be a string, got %T", key, raw)
			}
			e.Value = s
		case "label":
			s, ok := raw.(string)
			if !ok {
				return nil, fmt.Errorf("entity: label must be a string, got %T", raw)
			}
			e.Label = s
		case "aliases":
			aliases, err := toStrings(raw)
			if err != nil {
				return nil, err
			}
			e.Aliases = aliases
		case "meta":
			m, ok := raw.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("entity: meta must be a map, got %T", raw)
			}
			for k, v := range m {
				e.SetMetaValue(k, v)
			}
		case "priority":
			p, err := toInt(raw)
			if err != nil {
				return nil, err
			}
			e.Priority = &p
		default:
			e.SetMetaValue(key, raw)
		}
	}
	if e.Value == "" {
		return nil, fmt.Errorf("entity: record has no value")
	}
	return e, nil
}

func toStrings(raw any) ([]string, error) {
	switch v := raw.(type) {
	case []string:
		return append([]string(nil), v...), nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("entity: alias must be a string, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		return []string{v}, nil
	default:
		return nil, fmt.Errorf("entity: aliases must be strings, got %T", raw)
	}
}

func toInt(raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		return int(n), err
	default:
		return 0, fmt.Errorf("entity: priority must be an integer, got %T", raw)
	}
}

// MarshalBlob serializes the entity to its storage blob form.
func (e *Entity) MarshalBlob() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalBlob deserializes an entity from its storage blob form.
func UnmarshalBlob(data []byte) (*Entity, error) {
	var e Entity
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("entity: decode blob: %w", err)
	}
	return &e, nil
}
