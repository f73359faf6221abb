package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mlandesman/sams-billing-core/src/billingerr"
	"github.com/mlandesman/sams-billing-core/src/models"
	"github.com/mlandesman/sams-billing-core/src/storage"
)

// clientConfigTTL is how long a loaded ClientConfig is trusted before
// the next lookup re-reads it from storage (spec §5.6).
const clientConfigTTL = time.Hour

// hoaDuesConfigPath and waterBillsConfigPath are the two persisted
// config documents named by spec §6.3's "Persisted state layout":
// fiscal-calendar and dues-penalty policy live with the dues stream,
// water-penalty and rate policy lives with the water stream.
func hoaDuesConfigPath(clientID string) string {
	return fmt.Sprintf("clients/%s/config/hoaDues", clientID)
}

func waterBillsConfigPath(clientID string) string {
	return fmt.Sprintf("clients/%s/config/waterBills", clientID)
}

type cacheEntry struct {
	value     models.ClientConfig
	expiresAt time.Time
}

// ClientConfigService loads and caches per-client configuration. The
// cache exists because every Preview/Record/Compose call needs a
// ClientConfig and the underlying document rarely changes; a plain
// mutex-guarded map is enough since there is no ecosystem TTL-cache
// dependency anywhere in the corpus.
type ClientConfigService struct {
	store storage.Store
	log   zerolog.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewClientConfigService constructs a ClientConfigService.
func NewClientConfigService(store storage.Store, log zerolog.Logger) *ClientConfigService {
	return &ClientConfigService{
		store: store,
		log:   log.With().Str("service", "client_config").Logger(),
		cache: make(map[string]cacheEntry),
	}
}

// Get returns clientID's ClientConfig, serving a cached value if it is
// still within its TTL and otherwise loading and validating a fresh one
// from storage.
func (s *ClientConfigService) Get(ctx context.Context, clientID string) (models.ClientConfig, error) {
	s.mu.Lock()
	if entry, ok := s.cache[clientID]; ok && time.Now().Before(entry.expiresAt) {
		s.mu.Unlock()
		return entry.value, nil
	}
	s.mu.Unlock()

	cfg, err := s.load(ctx, clientID)
	if err != nil {
		return models.ClientConfig{}, err
	}

	s.mu.Lock()
	s.cache[clientID] = cacheEntry{value: cfg, expiresAt: time.Now().Add(clientConfigTTL)}
	s.mu.Unlock()

	return cfg, nil
}

// Invalidate drops any cached value for clientID, forcing the next Get
// to reload from storage.
func (s *ClientConfigService) Invalidate(clientID string) {
	s.mu.Lock()
	delete(s.cache, clientID)
	s.mu.Unlock()
}

func (s *ClientConfigService) load(ctx context.Context, clientID string) (models.ClientConfig, error) {
	hoaDoc, ok, err := s.store.GetDoc(ctx, hoaDuesConfigPath(clientID))
	if err != nil {
		return models.ClientConfig{}, fmt.Errorf("client_config: load %s hoaDues: %w", clientID, err)
	}
	if !ok {
		return models.ClientConfig{}, billingerr.New(billingerr.ConfigMissing,
			fmt.Sprintf("no hoaDues config document for client %s", clientID))
	}

	waterDoc, ok, err := s.store.GetDoc(ctx, waterBillsConfigPath(clientID))
	if err != nil {
		return models.ClientConfig{}, fmt.Errorf("client_config: load %s waterBills: %w", clientID, err)
	}
	if !ok {
		waterDoc = storage.Doc{}
	}

	cfg := docToClientConfig(clientID, hoaDoc, waterDoc)
	if err := cfg.Validate(); err != nil {
		return models.ClientConfig{}, err
	}
	s.log.Debug().Str("clientId", clientID).Msg("client config loaded")
	return cfg, nil
}

// docToClientConfig decodes the two spec §6.3-named config documents
// (clients/{cid}/config/hoaDues, clients/{cid}/config/waterBills) into
// one in-memory ClientConfig. Field names are preserved verbatim from
// the persisted layout per spec §6.3's compatibility requirement.
func docToClientConfig(clientID string, hoaDues, waterBills storage.Doc) models.ClientConfig {
	cfg := models.ClientConfig{ClientID: clientID}

	if v, ok := hoaDues["fiscalYearStartMonth"].(int64); ok {
		cfg.FiscalYearStartMonth = int(v)
	}
	cfg.DuesFrequency = models.DuesFrequency(fmt.Sprint(hoaDues["duesFrequency"]))
	cfg.HOA = models.HOAConfig{
		PenaltyRate: decimalFromDoc(hoaDues["penaltyRate"]),
	}
	if v, ok := hoaDues["penaltyDays"].(int64); ok {
		cfg.HOA.PenaltyDays = int(v)
	}

	cfg.Water = models.WaterConfig{
		PenaltyRate: decimalFromDoc(waterBills["penaltyRate"]),
	}
	if v, ok := waterBills["penaltyDays"].(int64); ok {
		cfg.Water.PenaltyDays = int(v)
	}
	if v, ok := waterBills["ratePerM3"].(int64); ok {
		cfg.Water.RatePerM3 = v
	}
	if v, ok := waterBills["minimumCharge"].(int64); ok {
		cfg.Water.MinimumCharge = v
	}

	return cfg
}

func decimalFromDoc(v interface{}) decimal.Decimal {
	s, ok := v.(string)
	if !ok {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
