// Package config ingests the layer catalog: the declarative description of
// base styles, overlays and groups the control works from.
//
// # Formats
//
// A catalog file may be JSON, YAML or TOML; the decoder is picked from the
// file extension. JSON catalogs may carry comments (JSONC), stripped with
// tidwall/jsonc before decoding.
//
// # Canonical shapes
//
// The widget historically accepted several spellings for the same concept:
// a zoomRange object or flat minZoom/maxZoom fields, a viewport directive
// or a flyTo object, forcedBaseStyleId or forcedBaseLayerId, a layer kind
// or its older type alias. Normalization folds every legacy spelling into
// the canonical pkg/types shape at the ingestion boundary; nothing past
// this package sees the old names. When both spellings appear, the
// canonical one wins.
//
// # Variable interpolation
//
// Catalog files support two placeholder forms before decoding:
//   - {env:VAR_NAME} - expands to the environment variable value
//   - {file:path} - expands to the file's contents, escaped for a
//     double-quoted string (valid in all three formats)
//
// Relative {file:path} paths resolve against the catalog file's directory;
// ~/ expands to the home directory.
//
// # Validation
//
// Parsing collects every problem (missing ids or labels, duplicate overlay
// or layer ids, opacity outside [0,1], inverted zoom ranges, malformed
// bounds, forced-base references to undeclared styles) into a single
// ValidationError rather than stopping at the first.
package config
