package config

import (
	"fmt"
	"strings"

	"github.com/drecchia/maplibre-layerlibre/pkg/types"
)

// ValidationError reports every problem found in a catalog, not just the
// first. Catalog problems are fatal at ingestion and at add-time.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "catalog validation failed: " + e.Problems[0]
	}
	return fmt.Sprintf("catalog validation failed (%d problems):\n  - %s",
		len(e.Problems), strings.Join(e.Problems, "\n  - "))
}

// CheckBaseStyle returns the field-level problems of a single base style.
func CheckBaseStyle(b types.BaseStyle) []string {
	var problems []string
	if b.ID == "" {
		problems = append(problems, "base style missing id")
	}
	if b.Label == "" {
		problems = append(problems, fmt.Sprintf("base style %q missing label", b.ID))
	}
	if b.Style == "" {
		problems = append(problems, fmt.Sprintf("base style %q missing style descriptor", b.ID))
	}
	if b.Strategy != types.StrategyReplace {
		problems = append(problems, fmt.Sprintf("base style %q: unknown strategy %q", b.ID, b.Strategy))
	}
	return problems
}

// CheckOverlay returns the field-level problems of a single overlay.
func CheckOverlay(o types.Overlay) []string {
	var problems []string
	if o.ID == "" {
		problems = append(problems, "overlay missing id")
	}
	if o.Label == "" {
		problems = append(problems, fmt.Sprintf("overlay %q missing label", o.ID))
	}
	if o.DefaultOpacity < 0 || o.DefaultOpacity > 1 {
		problems = append(problems, fmt.Sprintf("overlay %q: defaultOpacity %v outside [0,1]", o.ID, o.DefaultOpacity))
	}

	seen := make(map[string]bool)
	for _, spec := range o.LayerSpecs {
		if seen[spec.ID] {
			problems = append(problems, fmt.Sprintf("overlay %q: duplicate layer id %q", o.ID, spec.ID))
		}
		seen[spec.ID] = true
	}

	if zr := o.ZoomRange; zr != nil && zr.Min != nil && zr.Max != nil && *zr.Min >= *zr.Max {
		problems = append(problems, fmt.Sprintf("overlay %q: zoom range min %v must be below max %v", o.ID, *zr.Min, *zr.Max))
	}

	if v := o.Viewport; v != nil && v.Bounds != nil {
		b := v.Bounds
		if b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] {
			problems = append(problems, fmt.Sprintf("overlay %q: bounds min corner exceeds max corner", o.ID))
		}
	}

	return problems
}

// validate cross-checks the normalized catalog: per-entry field problems,
// duplicate ids, and dangling forced-base references.
func validate(c *Catalog) []string {
	var problems []string

	baseIDs := make(map[string]bool)
	for _, b := range c.BaseStyles {
		problems = append(problems, CheckBaseStyle(b)...)
		if b.ID == "" {
			continue
		}
		if baseIDs[b.ID] {
			problems = append(problems, fmt.Sprintf("duplicate base style id %q", b.ID))
		}
		baseIDs[b.ID] = true
	}

	groupIDs := make(map[string]bool)
	for _, g := range c.Groups {
		if g.ID == "" {
			problems = append(problems, "group missing id")
			continue
		}
		if groupIDs[g.ID] {
			problems = append(problems, fmt.Sprintf("duplicate group id %q", g.ID))
		}
		groupIDs[g.ID] = true
	}

	overlayIDs := make(map[string]bool)
	for _, o := range c.Overlays {
		problems = append(problems, CheckOverlay(o)...)
		if o.ID != "" {
			if overlayIDs[o.ID] {
				problems = append(problems, fmt.Sprintf("duplicate overlay id %q", o.ID))
			}
			overlayIDs[o.ID] = true
		}
		if o.ForcedBaseID != "" && !baseIDs[o.ForcedBaseID] {
			problems = append(problems, fmt.Sprintf("overlay %q: forced base style %q not declared", o.ID, o.ForcedBaseID))
		}
	}

	return problems
}
