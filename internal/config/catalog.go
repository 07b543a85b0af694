package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/paulmach/orb"
	"github.com/pelletier/go-toml/v2"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/drecchia/maplibre-layerlibre/pkg/types"
)

// Format selects the catalog decoder.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatForPath picks the decoder from the file extension. JSON is the
// default; .jsonc files go through comment stripping first.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	default:
		return FormatJSON
	}
}

// Catalog is the normalized configuration: base styles, overlays and group
// labels in their canonical shapes. Legacy spellings are resolved at
// ingestion and never visible past this package.
type Catalog struct {
	BaseStyles []types.BaseStyle
	Overlays   []types.Overlay
	Groups     []types.Group
}

// DefaultBase returns the id of the first declared base style, used when no
// persisted base exists.
func (c *Catalog) DefaultBase() string {
	if len(c.BaseStyles) == 0 {
		return ""
	}
	return c.BaseStyles[0].ID
}

// Merge folds another catalog into this one. Entries with an id already
// present replace the existing entry; new ids append in order.
func (c *Catalog) Merge(other *Catalog) {
	for _, b := range other.BaseStyles {
		c.BaseStyles = upsertBase(c.BaseStyles, b)
	}
	for _, o := range other.Overlays {
		c.Overlays = upsertOverlay(c.Overlays, o)
	}
	for _, g := range other.Groups {
		c.Groups = upsertGroup(c.Groups, g)
	}
}

func upsertBase(list []types.BaseStyle, b types.BaseStyle) []types.BaseStyle {
	for i := range list {
		if list[i].ID == b.ID {
			list[i] = b
			return list
		}
	}
	return append(list, b)
}

func upsertOverlay(list []types.Overlay, o types.Overlay) []types.Overlay {
	for i := range list {
		if list[i].ID == o.ID {
			list[i] = o
			return list
		}
	}
	return append(list, o)
}

func upsertGroup(list []types.Group, g types.Group) []types.Group {
	for i := range list {
		if list[i].ID == g.ID {
			list[i] = g
			return list
		}
	}
	return append(list, g)
}

// LoadCatalog reads, interpolates, decodes, normalizes and validates a
// catalog file. The returned error is a *ValidationError when the content
// decoded but is not an acceptable catalog.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return ParseCatalog(data, FormatForPath(path), filepath.Dir(path))
}

// ParseCatalog decodes catalog bytes in the given format. baseDir anchors
// relative {file:path} placeholders; "" means the working directory.
func ParseCatalog(data []byte, format Format, baseDir string) (*Catalog, error) {
	data = interpolate(data, baseDir)

	var raw rawCatalog
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to decode yaml catalog: %w", err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to decode toml catalog: %w", err)
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
			return nil, fmt.Errorf("failed to decode json catalog: %w", err)
		}
	}

	catalog, problems := raw.normalize()
	problems = append(problems, validate(catalog)...)
	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return catalog, nil
}

// interpolate processes {env:VAR} and {file:path} placeholders before the
// catalog is decoded. File contents are escaped for a double-quoted string,
// which reads identically in JSON, YAML and TOML.
func interpolate(data []byte, baseDir string) []byte {
	str := string(data)

	envPattern := regexp.MustCompile(`\{env:([^}]+)\}`)
	str = envPattern.ReplaceAllStringFunc(str, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})

	filePattern := regexp.MustCompile(`\{file:([^}]+)\}`)
	str = filePattern.ReplaceAllStringFunc(str, func(match string) string {
		filePath := filePattern.FindStringSubmatch(match)[1]

		if strings.HasPrefix(filePath, "~/") {
			home := os.Getenv("HOME")
			filePath = filepath.Join(home, filePath[2:])
		} else if !filepath.IsAbs(filePath) {
			filePath = filepath.Join(baseDir, filePath)
		}

		content, err := os.ReadFile(filePath)
		if err != nil {
			return match // Keep original if file not found
		}

		escaped := strings.ReplaceAll(string(content), "\\", "\\\\")
		escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
		escaped = strings.ReplaceAll(escaped, "\n", "\\n")
		escaped = strings.ReplaceAll(escaped, "\r", "\\r")
		escaped = strings.ReplaceAll(escaped, "\t", "\\t")

		return escaped
	})

	return []byte(str)
}

// rawCatalog is the on-disk shape. It tolerates every legacy spelling the
// widget historically accepted; normalize folds them into one canonical
// form.
type rawCatalog struct {
	BaseStyles []rawBase    `json:"baseStyles" yaml:"baseStyles" toml:"baseStyles"`
	Overlays   []rawOverlay `json:"overlays" yaml:"overlays" toml:"overlays"`
	Groups     []rawGroup   `json:"groups" yaml:"groups" toml:"groups"`
}

type rawBase struct {
	ID       string `json:"id" yaml:"id" toml:"id"`
	Label    string `json:"label" yaml:"label" toml:"label"`
	Style    string `json:"style" yaml:"style" toml:"style"`
	StyleURL string `json:"styleDescriptor" yaml:"styleDescriptor" toml:"styleDescriptor"` // legacy spelling
	Strategy string `json:"strategy" yaml:"strategy" toml:"strategy"`
}

type rawGroup struct {
	ID    string `json:"id" yaml:"id" toml:"id"`
	Label string `json:"label" yaml:"label" toml:"label"`
}

type rawLayer struct {
	ID    string         `json:"id" yaml:"id" toml:"id"`
	Kind  string         `json:"kind" yaml:"kind" toml:"kind"`
	Type  string         `json:"type" yaml:"type" toml:"type"` // legacy spelling of kind
	Props map[string]any `json:"props" yaml:"props" toml:"props"`
}

type rawViewport struct {
	Bounds   any      `json:"bounds" yaml:"bounds" toml:"bounds"`
	Center   any      `json:"center" yaml:"center" toml:"center"`
	Zoom     *float64 `json:"zoom" yaml:"zoom" toml:"zoom"`
	Bearing  *float64 `json:"bearing" yaml:"bearing" toml:"bearing"`
	Pitch    *float64 `json:"pitch" yaml:"pitch" toml:"pitch"`
	Padding  float64  `json:"padding" yaml:"padding" toml:"padding"`
	Duration int      `json:"duration" yaml:"duration" toml:"duration"`
}

type rawZoomRange struct {
	Min *float64 `json:"min" yaml:"min" toml:"min"`
	Max *float64 `json:"max" yaml:"max" toml:"max"`
}

type rawOverlay struct {
	ID             string        `json:"id" yaml:"id" toml:"id"`
	Label          string        `json:"label" yaml:"label" toml:"label"`
	Group          string        `json:"group" yaml:"group" toml:"group"`
	Layers         []rawLayer    `json:"layers" yaml:"layers" toml:"layers"`
	OpacityEnabled bool          `json:"opacityEnabled" yaml:"opacityEnabled" toml:"opacityEnabled"`
	DefaultOpacity *float64      `json:"defaultOpacity" yaml:"defaultOpacity" toml:"defaultOpacity"`
	DefaultVisible bool          `json:"defaultVisible" yaml:"defaultVisible" toml:"defaultVisible"`
	Viewport       *rawViewport  `json:"viewport" yaml:"viewport" toml:"viewport"`
	FlyTo          *rawViewport  `json:"flyTo" yaml:"flyTo" toml:"flyTo"` // legacy spelling of viewport
	ForcedBase     string        `json:"forcedBaseStyleId" yaml:"forcedBaseStyleId" toml:"forcedBaseStyleId"`
	ForcedBaseOld  string        `json:"forcedBaseLayerId" yaml:"forcedBaseLayerId" toml:"forcedBaseLayerId"` // legacy spelling
	ZoomRange      *rawZoomRange `json:"zoomRange" yaml:"zoomRange" toml:"zoomRange"`
	MinZoom        *float64      `json:"minZoom" yaml:"minZoom" toml:"minZoom"` // legacy flat spelling
	MaxZoom        *float64      `json:"maxZoom" yaml:"maxZoom" toml:"maxZoom"` // legacy flat spelling
	Tooltip        any           `json:"tooltip" yaml:"tooltip" toml:"tooltip"`
}

// normalize converts the raw catalog to canonical shapes, collecting
// problems it can already see (malformed bounds, unusable tooltips).
func (r *rawCatalog) normalize() (*Catalog, []string) {
	var problems []string
	catalog := &Catalog{}

	for _, rb := range r.BaseStyles {
		style := rb.Style
		if style == "" {
			style = rb.StyleURL
		}
		strategy := types.BaseStrategy(rb.Strategy)
		if rb.Strategy == "" {
			strategy = types.StrategyReplace
		}
		catalog.BaseStyles = append(catalog.BaseStyles, types.BaseStyle{
			ID:       rb.ID,
			Label:    rb.Label,
			Style:    style,
			Strategy: strategy,
		})
	}

	for _, rg := range r.Groups {
		catalog.Groups = append(catalog.Groups, types.Group{ID: rg.ID, Label: rg.Label})
	}

	for _, ro := range r.Overlays {
		o, ps := ro.normalize()
		problems = append(problems, ps...)
		catalog.Overlays = append(catalog.Overlays, o)
	}

	return catalog, problems
}

func (ro *rawOverlay) normalize() (types.Overlay, []string) {
	var problems []string

	o := types.Overlay{
		ID:             ro.ID,
		Label:          ro.Label,
		Group:          ro.Group,
		OpacityEnabled: ro.OpacityEnabled,
		DefaultOpacity: 1.0,
		DefaultVisible: ro.DefaultVisible,
	}
	if ro.DefaultOpacity != nil {
		o.DefaultOpacity = *ro.DefaultOpacity
	}

	for _, rl := range ro.Layers {
		kind := rl.Kind
		if kind == "" {
			kind = rl.Type
		}
		if kind == "" {
			kind = "geojson"
		}
		id := rl.ID
		if id == "" {
			id = ulid.Make().String()
		}
		o.LayerSpecs = append(o.LayerSpecs, types.LayerSpec{ID: id, Kind: kind, Props: rl.Props})
	}

	// Canonical spelling wins when both are present.
	o.ForcedBaseID = ro.ForcedBase
	if o.ForcedBaseID == "" {
		o.ForcedBaseID = ro.ForcedBaseOld
	}

	switch {
	case ro.ZoomRange != nil:
		o.ZoomRange = &types.ZoomRange{Min: ro.ZoomRange.Min, Max: ro.ZoomRange.Max}
	case ro.MinZoom != nil || ro.MaxZoom != nil:
		o.ZoomRange = &types.ZoomRange{Min: ro.MinZoom, Max: ro.MaxZoom}
	}

	rv := ro.Viewport
	if rv == nil {
		rv = ro.FlyTo
	}
	if rv != nil {
		v, ps := rv.normalize(ro.ID)
		problems = append(problems, ps...)
		if !v.Empty() {
			o.Viewport = v
		}
	}

	if ro.Tooltip != nil {
		spec, err := normalizeTooltip(ro.Tooltip)
		if err != nil {
			problems = append(problems, fmt.Sprintf("overlay %q: %v", ro.ID, err))
		} else {
			o.Tooltip = spec
		}
	}

	return o, problems
}

func (rv *rawViewport) normalize(overlayID string) (*types.ViewportDirective, []string) {
	var problems []string
	d := &types.ViewportDirective{
		Zoom:       rv.Zoom,
		Bearing:    rv.Bearing,
		Pitch:      rv.Pitch,
		Padding:    rv.Padding,
		DurationMS: rv.Duration,
	}

	if rv.Bounds != nil {
		b, err := parseBounds(rv.Bounds)
		if err != nil {
			problems = append(problems, fmt.Sprintf("overlay %q: %v", overlayID, err))
		} else {
			d.Bounds = b
		}
	}

	if rv.Center != nil {
		c, err := parseLngLat(rv.Center)
		if err != nil {
			problems = append(problems, fmt.Sprintf("overlay %q: %v", overlayID, err))
		} else {
			d.Center = c
		}
	}

	return d, problems
}

// parseBounds accepts [w,s,e,n] or [[w,s],[e,n]].
func parseBounds(v any) (*orb.Bound, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("malformed bounds: expected array, got %T", v)
	}

	var flat []float64
	for _, item := range items {
		switch it := item.(type) {
		case []any:
			for _, n := range it {
				f, ok := asFloat(n)
				if !ok {
					return nil, fmt.Errorf("malformed bounds: non-numeric coordinate %v", n)
				}
				flat = append(flat, f)
			}
		default:
			f, ok := asFloat(item)
			if !ok {
				return nil, fmt.Errorf("malformed bounds: non-numeric coordinate %v", item)
			}
			flat = append(flat, f)
		}
	}

	if len(flat) != 4 {
		return nil, fmt.Errorf("malformed bounds: expected 4 coordinates, got %d", len(flat))
	}

	return &orb.Bound{
		Min: orb.Point{flat[0], flat[1]},
		Max: orb.Point{flat[2], flat[3]},
	}, nil
}

// parseLngLat accepts [lng,lat] or {lng, lat}.
func parseLngLat(v any) (*types.LngLat, error) {
	switch c := v.(type) {
	case []any:
		if len(c) != 2 {
			return nil, fmt.Errorf("malformed center: expected [lng, lat], got %d elements", len(c))
		}
		lng, okLng := asFloat(c[0])
		lat, okLat := asFloat(c[1])
		if !okLng || !okLat {
			return nil, fmt.Errorf("malformed center: non-numeric coordinates")
		}
		return &types.LngLat{Lng: lng, Lat: lat}, nil
	case map[string]any:
		lng, okLng := asFloat(c["lng"])
		lat, okLat := asFloat(c["lat"])
		if !okLng || !okLat {
			return nil, fmt.Errorf("malformed center: expected lng and lat fields")
		}
		return &types.LngLat{Lng: lng, Lat: lat}, nil
	default:
		return nil, fmt.Errorf("malformed center: %T", v)
	}
}

// normalizeTooltip accepts a bare template string or a structured
// {title, fields|text} object.
func normalizeTooltip(v any) (*types.TooltipSpec, error) {
	switch tt := v.(type) {
	case string:
		return &types.TooltipSpec{Text: tt}, nil
	case map[string]any:
		spec := &types.TooltipSpec{}
		if s, ok := tt["text"].(string); ok {
			spec.Text = s
		}
		if s, ok := tt["title"].(string); ok {
			spec.Title = s
		}
		if fields, ok := tt["fields"].([]any); ok {
			for _, f := range fields {
				fm, ok := f.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("malformed tooltip field: %v", f)
				}
				field := types.TooltipField{}
				if s, ok := fm["label"].(string); ok {
					field.Label = s
				}
				if s, ok := fm["property"].(string); ok {
					field.Property = s
				}
				if field.Property == "" {
					return nil, fmt.Errorf("tooltip field missing property")
				}
				spec.Fields = append(spec.Fields, field)
			}
		}
		if spec.Text == "" && spec.Fields == nil {
			return nil, fmt.Errorf("tooltip needs text or fields")
		}
		return spec, nil
	default:
		return nil, fmt.Errorf("malformed tooltip: %T", v)
	}
}

// asFloat coerces the numeric types the three decoders produce.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
