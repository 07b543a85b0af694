package headless

import (
	"testing"

	"github.com/drecchia/maplibre-layerlibre/pkg/types"
)

func TestSurface_CreateLayerRejectsMalformedSpecs(t *testing.T) {
	s := NewSurface()

	if _, err := s.CreateLayer(types.LayerSpec{Kind: "fill"}, 1); err == nil {
		t.Fatal("expected error for missing id")
	}
	if _, err := s.CreateLayer(types.LayerSpec{ID: "roads"}, 1); err == nil {
		t.Fatal("expected error for missing kind")
	}
}

func TestSurface_CommitReplacesComposite(t *testing.T) {
	s := NewSurface()

	a, err := s.CreateLayer(types.LayerSpec{ID: "a", Kind: "fill"}, 1)
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.CreateLayer(types.LayerSpec{ID: "b", Kind: "line"}, 0.5)
	if err != nil {
		t.Fatal(err)
	}

	s.Commit([]types.RenderLayer{a, b})
	if got := s.LayerIDs(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("layer ids = %v", got)
	}

	s.Commit([]types.RenderLayer{b})
	if got := s.LayerIDs(); len(got) != 1 || got[0] != "b" {
		t.Fatalf("layer ids after replace = %v", got)
	}
	if s.Commits() != 2 {
		t.Fatalf("commits = %d, want 2", s.Commits())
	}
}

func TestSurface_WithOpacityDerivesNewHandle(t *testing.T) {
	s := NewSurface()

	orig, err := s.CreateLayer(types.LayerSpec{ID: "a", Kind: "fill", Props: map[string]any{"color": "#f00"}}, 0.8)
	if err != nil {
		t.Fatal(err)
	}

	derived := orig.WithOpacity(0.3)
	if orig.Opacity() != 0.8 {
		t.Fatalf("original opacity mutated: %v", orig.Opacity())
	}
	if derived.Opacity() != 0.3 {
		t.Fatalf("derived opacity = %v", derived.Opacity())
	}
	if derived.ID() != "a" {
		t.Fatalf("derived id = %q", derived.ID())
	}
	if orig.(Layer).Handle() == derived.(Layer).Handle() {
		t.Fatal("derived layer shares the original handle")
	}
	if v, ok := derived.(Layer).Prop("color"); !ok || v != "#f00" {
		t.Fatalf("derived lost props: %v %v", v, ok)
	}
}

func TestSurface_ClearEmptiesComposite(t *testing.T) {
	s := NewSurface()

	a, _ := s.CreateLayer(types.LayerSpec{ID: "a", Kind: "fill"}, 1)
	s.Commit([]types.RenderLayer{a})
	s.Clear()

	if got := s.Layers(); len(got) != 0 {
		t.Fatalf("layers after clear = %v", got)
	}
	if s.Clears() != 1 {
		t.Fatalf("clears = %d", s.Clears())
	}
}

func TestSurface_TooltipFallback(t *testing.T) {
	s := NewSurface(WithTooltipResolver(func(p types.Pick) *types.TooltipContent {
		return &types.TooltipContent{HTML: "<b>" + p.OverlayID + "</b>"}
	}))

	tip := s.ResolveTooltip(types.Pick{OverlayID: "roads"})
	if tip == nil || tip.HTML != "<b>roads</b>" {
		t.Fatalf("tooltip = %+v", tip)
	}

	bare := NewSurface()
	if tip := bare.ResolveTooltip(types.Pick{OverlayID: "roads"}); tip != nil {
		t.Fatalf("bare surface resolved %+v, want nil", tip)
	}
}
