package oracle

import (
	"math/big"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"LiquidLend/internal/observability"
	"LiquidLend/internal/ray"
)

// PriceFeed is one price observation: USD per whole unit, Ray-scaled.
type PriceFeed struct {
	AssetID   string
	Price     *big.Int
	Timestamp int64
}

// Stale reports whether the observation is older than maxAge seconds.
func (f *PriceFeed) Stale(now, maxAge int64) bool {
	return now-f.Timestamp > maxAge
}

// Source produces price feeds. Implementations must return a nil feed
// (not an error) when they simply have no price for the asset.
type Source interface {
	FetchPrice(assetID string) (*PriceFeed, error)
}

// Amounts are satoshis; prices are per whole unit.
var satoshisPerUnit = big.NewInt(100_000_000)

// DefaultStalenessSeconds is the maximum price age accepted for
// valuations.
const DefaultStalenessSeconds = 300

// Service caches price feeds from a Source and values asset amounts.
// A missing price and a stale price are indistinguishable to callers:
// both make the valuation unavailable.
type Service struct {
	mu       sync.Mutex
	source   Source
	cache    map[string]*PriceFeed
	cacheTTL int64
	maxAge   int64
	now      func() int64
	log      zerolog.Logger
	metrics  *observability.Metrics
}

func NewService(source Source, maxAgeSeconds int64, metrics *observability.Metrics) *Service {
	if maxAgeSeconds <= 0 {
		maxAgeSeconds = DefaultStalenessSeconds
	}
	return &Service{
		source:   source,
		cache:    make(map[string]*PriceFeed),
		cacheTTL: 60,
		maxAge:   maxAgeSeconds,
		now:      func() int64 { return time.Now().Unix() },
		log:      observability.NewLogger("oracle"),
		metrics:  metrics,
	}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() int64) {
	s.now = now
}

// Price returns the current feed for an asset, consulting the cache
// first. ok is false when no source has a price.
func (s *Service) Price(assetID string) (*PriceFeed, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if cached := s.cache[assetID]; cached != nil && !cached.Stale(now, s.cacheTTL) {
		return cached, true
	}

	feed, err := s.source.FetchPrice(assetID)
	if err != nil {
		s.log.Warn().Err(err).Str("asset", assetID).Msg("price fetch failed")
		return nil, false
	}
	if feed == nil {
		return nil, false
	}

	s.cache[assetID] = feed
	return feed, true
}

// AssetValue returns the USD value (Ray) of an asset amount, or ok=false
// when no fresh price exists.
func (s *Service) AssetValue(assetID string, amount int64) (*big.Int, bool) {
	feed, ok := s.Price(assetID)
	if !ok {
		s.countLookup(assetID, "missing")
		return nil, false
	}

	if feed.Stale(s.now(), s.maxAge) {
		s.log.Warn().Str("asset", assetID).Int64("age", s.now()-feed.Timestamp).Msg("price is stale")
		s.countLookup(assetID, "stale")
		return nil, false
	}

	s.countLookup(assetID, "ok")

	// value = (amount / 10^8) * price
	value := ray.MulInt(amount, feed.Price)
	return value.Quo(value, satoshisPerUnit), true
}

func (s *Service) countLookup(assetID, status string) {
	if s.metrics != nil {
		s.metrics.OracleLookups.WithLabelValues(assetID, status).Inc()
	}
}

// SimulatedSource serves a fixed price table, timestamped at fetch time.
// Stands in for a signed oracle feed in development and tests.
type SimulatedSource struct {
	prices map[string]*big.Int
	now    func() int64
}

func NewSimulatedSource(prices map[string]*big.Int) *SimulatedSource {
	return &SimulatedSource{
		prices: prices,
		now:    func() int64 { return time.Now().Unix() },
	}
}

// SetClock overrides the time source.
func (s *SimulatedSource) SetClock(now func() int64) {
	s.now = now
}

func (s *SimulatedSource) FetchPrice(assetID string) (*PriceFeed, error) {
	price, ok := s.prices[assetID]
	if !ok {
		return nil, nil
	}
	return &PriceFeed{
		AssetID:   assetID,
		Price:     new(big.Int).Set(price),
		Timestamp: s.now(),
	}, nil
}

// DefaultSimulatedPrices returns the development price table:
// 1 BTC = $60,000, 1 USDT = $1.
func DefaultSimulatedPrices() map[string]*big.Int {
	return map[string]*big.Int{
		"btc":  new(big.Int).Mul(big.NewInt(60_000), ray.Ray),
		"usdt": new(big.Int).Set(ray.Ray),
	}
}
