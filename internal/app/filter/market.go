package filter

import (
	"context"

	"github.com/osa030/jukebot/internal/domain/track"
)

// MarketFilter checks if the track is playable in the configured market.
type MarketFilter struct {
	market string
}

// NewMarketFilter creates a new MarketFilter with the specified market.
func NewMarketFilter(market string) *MarketFilter {
	return &MarketFilter{market: market}
}

func (f *MarketFilter) Name() string {
	return "market_filter"
}

func (f *MarketFilter) Description() string {
	return "Checks if the track is available in the configured market"
}

func (f *MarketFilter) ReturnCodes() []string {
	return []string{"market_restriction"}
}

func (f *MarketFilter) ValidateConfig(settings map[string]any) error {
	return nil
}

func (f *MarketFilter) Check(ctx context.Context, req Request, t track.Track) Result {
	if f.market == "" {
		return Accept()
	}

	if !t.IsAvailableInMarket(f.market) {
		return Reject("market_restriction")
	}
	return Accept()
}

func init() {
	// Created with the spotify market from config; listed here for list-filters only.
	Register("market_filter", func() Filter {
		return &MarketFilter{}
	})
}
