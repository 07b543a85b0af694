package types

// BaseStrategy selects how a base style is applied to the map.
type BaseStrategy string

// StrategyReplace swaps the whole map style. It is currently the only
// strategy; the field exists so persisted catalogs stay forward compatible.
const StrategyReplace BaseStrategy = "replace"

// BaseStyle is one of the mutually-exclusive background map styles the
// overlays sit on top of.
type BaseStyle struct {
	ID    string `json:"id"`
	Label string `json:"label"`

	// Style is the style descriptor: a URL or an inline style document.
	Style string `json:"style"`

	Strategy BaseStrategy `json:"strategy,omitempty"`
}
