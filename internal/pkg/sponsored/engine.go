package sponsored

import (
	"context"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PixelMart/app/models"
	"github.com/ManuelReschke/PixelMart/internal/pkg/auction"
	"github.com/ManuelReschke/PixelMart/internal/pkg/catalog"
)

// SearchContext describes the listing the organic results came from.
type SearchContext struct {
	Query    string `json:"query"`
	Category string `json:"category"`
}

// LayoutFromSettings reads the layout from the stored tunables.
func LayoutFromSettings(s *models.AdSettings) Layout {
	return Layout{
		Fixed:        s.GetSponsoredPositions(),
		Interval:     s.SponsoredRepeatInterval,
		DedupeRadius: s.SponsoredDedupeRadius,
	}
}

// Engine fetches sponsored candidates and splices them into result lists.
type Engine struct {
	auction  *auction.Engine
	products catalog.ProductCatalog
	layout   func() Layout
}

// NewEngine creates an insertion engine. layout is read per call; nil uses
// the current AdSettings.
func NewEngine(auctions *auction.Engine, products catalog.ProductCatalog, layout func() Layout) *Engine {
	if layout == nil {
		layout = func() Layout { return LayoutFromSettings(models.GetAdSettings()) }
	}
	return &Engine{auction: auctions, products: products, layout: layout}
}

// Candidates returns eligible sponsored ads whose product is approved and
// active, ranked by weighted bid.
func (e *Engine) Candidates(ctx context.Context) ([]Candidate, error) {
	scored, err := e.auction.Eligible(ctx, models.AdTypeSponsoredProduct, 0)
	if err != nil {
		return nil, err
	}

	live := make([]auction.Scored, 0, len(scored))
	for _, s := range scored {
		if s.Ad.ProductID == nil {
			continue
		}
		ok, err := e.products.IsProductApprovedAndActive(ctx, *s.Ad.ProductID)
		if err != nil {
			log.Warnf("[Sponsored] Product check for ad %d failed: %v", s.Ad.ID, err)
			continue
		}
		if ok {
			live = append(live, s)
		}
	}

	ranked := auction.Rank(live)
	out := make([]Candidate, len(ranked))
	for i, s := range ranked {
		out[i] = Candidate{AdID: s.Ad.ID, ProductID: *s.Ad.ProductID}
	}
	return out, nil
}

// InsertSponsored splices ranked sponsored products into organic. Display
// metadata is attached to every sponsored entry; organic entries are
// returned as given apart from their position.
func (e *Engine) InsertSponsored(ctx context.Context, organic []Result, search SearchContext) ([]Result, error) {
	candidates, err := e.Candidates(ctx)
	if err != nil {
		return nil, err
	}
	layout := e.layout()
	if n := len(Positions(len(candidates), layout)); n < len(candidates) {
		candidates = candidates[:n]
	}

	out := Splice(organic, candidates, layout)
	for i := range out {
		if !out[i].IsSponsored {
			continue
		}
		meta, err := e.products.ProductDisplayMeta(ctx, out[i].ProductID)
		if err != nil {
			return nil, err
		}
		out[i].Meta = &meta
	}
	log.Debugf("[Sponsored] %d sponsored entries in %d results for %q", len(out)-len(organic), len(out), search.Query)
	return out, nil
}
