package overlay

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"sync"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"

	"github.com/drecchia/maplibre-layerlibre/pkg/types"
)

// ResolveTooltip answers a hover or click pick. Within a tooltip spec, Func
// wins over Fields and Fields over Text. Overlays without a spec delegate
// to the render surface. Nil suppresses the tooltip.
func (e *Engine) ResolveTooltip(pick types.Pick) *types.TooltipContent {
	e.mu.Lock()
	o, ok := e.overlays[pick.OverlayID]
	var spec *types.TooltipSpec
	if ok {
		spec = o.Tooltip
	}
	e.mu.Unlock()

	if !ok {
		e.logUnknown("resolveTooltip", "overlay", pick.OverlayID)
		return nil
	}
	if spec == nil {
		return e.surface.ResolveTooltip(pick)
	}

	switch {
	case spec.Func != nil:
		return spec.Func(pick)
	case len(spec.Fields) > 0:
		return fieldsTooltip(spec, pick)
	case spec.Text != "":
		return &types.TooltipContent{HTML: renderTemplate(spec.Text, templateEnv(pick))}
	}
	return nil
}

// fieldsTooltip renders the structured variant: an optional title row plus
// one row per declared field. Fields whose property is absent from the
// picked feature are skipped.
func fieldsTooltip(spec *types.TooltipSpec, pick types.Pick) *types.TooltipContent {
	var b strings.Builder
	b.WriteString(`<div class="layerlibre-tooltip">`)
	if spec.Title != "" {
		b.WriteString(`<div class="tooltip-title">`)
		b.WriteString(html.EscapeString(spec.Title))
		b.WriteString(`</div>`)
	}
	for _, f := range spec.Fields {
		v, ok := pick.Properties[f.Property]
		if !ok {
			continue
		}
		b.WriteString(`<div class="tooltip-row"><span class="tooltip-label">`)
		b.WriteString(html.EscapeString(f.Label))
		b.WriteString(`</span><span class="tooltip-value">`)
		b.WriteString(html.EscapeString(fmt.Sprint(v)))
		b.WriteString(`</span></div>`)
	}
	b.WriteString(`</div>`)
	return &types.TooltipContent{HTML: b.String()}
}

var tooltipExprPattern = regexp.MustCompile(`\{\{([^{}]+)\}\}`)

// templateCache memoizes compiled tooltip expressions. Tooltips resolve on
// every hover, so each distinct template pays compilation once.
var templateCache = struct {
	sync.Mutex
	programs map[string]*exprvm.Program
}{programs: map[string]*exprvm.Program{}}

// renderTemplate substitutes every {{ expression }} segment with its value
// evaluated against env. Failing segments render empty; the literal text
// around them passes through untouched.
func renderTemplate(text string, env map[string]any) string {
	return tooltipExprPattern.ReplaceAllStringFunc(text, func(segment string) string {
		code := strings.TrimSpace(segment[2 : len(segment)-2])
		program, err := compileTemplateExpr(code)
		if err != nil {
			return ""
		}
		out, err := exprlang.Run(program, env)
		if err != nil || out == nil {
			return ""
		}
		return html.EscapeString(fmt.Sprint(out))
	})
}

func compileTemplateExpr(code string) (*exprvm.Program, error) {
	templateCache.Lock()
	defer templateCache.Unlock()
	if p, ok := templateCache.programs[code]; ok {
		return p, nil
	}
	p, err := exprlang.Compile(code,
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, err
	}
	templateCache.programs[code] = p
	return p, nil
}

// templateEnv exposes the picked feature to templates: its properties
// flattened at top level, plus pick metadata under reserved names.
func templateEnv(pick types.Pick) map[string]any {
	env := map[string]any{
		"overlayId":  pick.OverlayID,
		"layerId":    pick.LayerID,
		"lng":        pick.LngLat[0],
		"lat":        pick.LngLat[1],
		"properties": pick.Properties,
	}
	for k, v := range pick.Properties {
		if _, reserved := env[k]; !reserved {
			env[k] = v
		}
	}
	return env
}
