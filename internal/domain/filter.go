package domain

import (
	"fmt"

	"github.com/woxQAQ/sourcehost/internal/value"
	"github.com/woxQAQ/sourcehost/pkg/abi"
)

// FilterKind selects how a Filter is presented and interpreted.
type FilterKind int32

const (
	FilterText          = FilterKind(abi.FilterText)
	FilterTitle         = FilterKind(abi.FilterTitle)
	FilterAuthor        = FilterKind(abi.FilterAuthor)
	FilterCheck         = FilterKind(abi.FilterCheck)
	FilterGenre         = FilterKind(abi.FilterGenre)
	FilterSelect        = FilterKind(abi.FilterSelect)
	FilterSort          = FilterKind(abi.FilterSort)
	FilterSortSelection = FilterKind(abi.FilterSortSelection)
	FilterGroup         = FilterKind(abi.FilterGroup)
	// FilterOption is a named entry referenced by select and sort filters.
	FilterOption = FilterKind(abi.FilterOption)
)

var filterKindNames = [...]string{
	"text", "title", "author", "check", "genre", "select", "sort",
	"sort_selection", "group", "option",
}

func (k FilterKind) String() string {
	if k < 0 || int(k) >= len(filterKindNames) {
		return fmt.Sprintf("FilterKind(%d)", int32(k))
	}
	return filterKindNames[k]
}

// Valid reports whether k is a known kind.
func (k FilterKind) Valid() bool {
	return k >= FilterText && k <= FilterOption
}

// Filter is a search filter definition or, when handed back to a plugin,
// the user's current choice. Which fields are meaningful depends on Kind.
type Filter struct {
	Kind FilterKind `yaml:"kind"`
	Name string     `yaml:"name"`

	// Text, title and author filters.
	Text string `yaml:"text,omitempty"`

	// Check and genre filters. State is nil when unset, 0 when excluded
	// and 1 when included.
	CanExclude bool   `yaml:"can_exclude,omitempty"`
	State      *int32 `yaml:"state,omitempty"`

	// Select and sort filters.
	Options  []string `yaml:"options,omitempty"`
	Selected int32    `yaml:"selected,omitempty"`
	Default  int32    `yaml:"default,omitempty"`

	// Sort filters.
	CanAscend bool    `yaml:"can_ascend,omitempty"`
	Sort      *Filter `yaml:"sort,omitempty"`

	// Sort selections.
	Index     int32 `yaml:"index,omitempty"`
	Ascending bool  `yaml:"ascending,omitempty"`

	// Group filters.
	Filters []*Filter `yaml:"filters,omitempty"`
}

var filterFields = []string{
	"type", "name", "value", "default", "options", "canExclude",
	"canAscend", "filters", "index", "ascending",
}

func (f *Filter) FieldNames() []string { return filterFields }

func (f *Filter) Field(name string) (value.Value, bool) {
	switch name {
	case "type":
		return value.Int(int64(f.Kind)), true
	case "name":
		return value.String(f.Name), true
	case "value":
		return f.currentValue(), true
	case "default":
		switch f.Kind {
		case FilterSelect:
			return value.Int(int64(f.Default)), true
		case FilterCheck, FilterGenre:
			return value.Bool(f.CanExclude), true
		case FilterSort:
			return value.Bool(f.CanAscend), true
		case FilterSortSelection:
			return value.Bool(f.Ascending), true
		}
		return value.Null(), true
	case "options":
		return value.Strings(f.Options), true
	case "canExclude":
		return value.Bool(f.CanExclude), true
	case "canAscend":
		return value.Bool(f.CanAscend), true
	case "filters":
		items := make([]value.Value, len(f.Filters))
		for i, child := range f.Filters {
			items[i] = value.Host(child)
		}
		return value.Array(items...), true
	case "index":
		return value.Int(int64(f.Index)), true
	case "ascending":
		return value.Bool(f.Ascending), true
	}
	return value.Value{}, false
}

func (f *Filter) currentValue() value.Value {
	switch f.Kind {
	case FilterText, FilterTitle, FilterAuthor:
		if f.Text == "" {
			return value.Null()
		}
		return value.String(f.Text)
	case FilterCheck, FilterGenre:
		if f.State == nil {
			return value.Null()
		}
		return value.Int(int64(*f.State))
	case FilterSelect:
		return value.Int(int64(f.Selected))
	case FilterSort:
		if f.Sort == nil {
			return value.Null()
		}
		return value.Host(f.Sort)
	case FilterSortSelection:
		return value.Int(int64(f.Index))
	}
	return value.Null()
}
