package entity

// SearchFlag is a composable capability set deciding which strategies a
// backend builds indices for and tries at query time. Alias search
// implies name search; fuzzy and semantic search both imply alias search.
type SearchFlag uint8

const (
	// NameOK enables exact lookup by canonical value.
	NameOK SearchFlag = 1 << iota
	// AliasOK enables exact lookup by alias terms.
	AliasOK
	// FuzzOK enables approximate string matching.
	FuzzOK
	// SemanticOK enables vector similarity matching.
	SemanticOK
)

// Composed search modes. Each stronger mode carries the weaker bits so a
// backend can consult individual capabilities without re-deriving the
// implication chain.
const (
	NameSearch     = NameOK
	AliasSearch    = NameSearch | AliasOK
	FuzzSearch     = AliasSearch | FuzzOK
	SemanticSearch = AliasSearch | SemanticOK
	HybridSearch   = FuzzSearch | SemanticSearch
	DefaultSearch  = AliasSearch
)

// IsNameOK reports whether exact name lookup is enabled.
func (f SearchFlag) IsNameOK() bool { return f&NameOK != 0 }

// IsAliasOK reports whether alias lookup is enabled.
func (f SearchFlag) IsAliasOK() bool { return f&AliasOK != 0 }

// IsFuzzOK reports whether fuzzy matching is enabled.
func (f SearchFlag) IsFuzzOK() bool { return f&FuzzOK != 0 }

// IsSemanticOK reports whether semantic matching is enabled.
func (f SearchFlag) IsSemanticOK() bool { return f&SemanticOK != 0 }

// IsFuzzOrSemanticOK reports whether either approximate strategy is on.
func (f SearchFlag) IsFuzzOrSemanticOK() bool {
	return f.IsFuzzOK() || f.IsSemanticOK()
}

// IsHybrid reports whether fuzzy and semantic matching are both enabled.
func (f SearchFlag) IsHybrid() bool {
	return f.IsFuzzOK() && f.IsSemanticOK()
}

// String returns the conventional name of the flag set.
func (f SearchFlag) String() string {
	switch f {
	case NameSearch:
		return "name"
	case AliasSearch:
		return "alias"
	case FuzzSearch:
		return "fuzz"
	case SemanticSearch:
		return "semantic"
	case HybridSearch:
		return "hybrid"
	default:
		return "custom"
	}
}

// ParseSearchFlag maps a mode name to its composed flag set. Unknown
// names fall back to DefaultSearch.
func ParseSearchFlag(name string) SearchFlag {
	switch name {
	case "name":
		return NameSearch
	case "alias":
		return AliasSearch
	case "fuzz":
		return FuzzSearch
	case "semantic":
		return SemanticSearch
	case "hybrid":
		return HybridSearch
	default:
		return DefaultSearch
	}
}
