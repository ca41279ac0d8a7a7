package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fosslighting/fossapp/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RatesKey Redis key of the cached rate table
const RatesKey = "fx:rates"

var ErrUnknownCurrency = errors.New("unknown currency")

// Rates units of each currency per one unit of Base
type Rates struct {
	Base      string                     `json:"base"`
	Rates     map[string]decimal.Decimal `json:"rates"`
	FetchedAt time.Time                  `json:"fetched_at"`
}

// CurrencyService converts amounts with rates from configuration, cached
// in Redis so every instance converts with the same table.
type CurrencyService struct {
	redis  redis.Cmdable
	cfg    config.CurrencyConfig
	logger *zap.Logger
}

func NewCurrencyService(rdb redis.Cmdable, cfg config.CurrencyConfig, logger *zap.Logger) *CurrencyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Base == "" {
		cfg.Base = "EUR"
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 12 * time.Hour
	}
	return &CurrencyService{redis: rdb, cfg: cfg, logger: logger.Named("currency")}
}

func (s *CurrencyService) configRates() *Rates {
	base := strings.ToUpper(s.cfg.Base)
	rates := &Rates{
		Base:      base,
		Rates:     map[string]decimal.Decimal{base: decimal.NewFromInt(1)},
		FetchedAt: time.Now(),
	}
	for code, rate := range s.cfg.Rates {
		if rate <= 0 {
			continue
		}
		rates.Rates[strings.ToUpper(code)] = decimal.NewFromFloat(rate)
	}
	return rates
}

// GetRates returns the cached table, refilling it from configuration on a
// miss. Redis failures fall back to configuration.
func (s *CurrencyService) GetRates(ctx context.Context) (*Rates, error) {
	if s.redis == nil {
		return s.configRates(), nil
	}

	raw, err := s.redis.Get(ctx, RatesKey).Bytes()
	if err == nil {
		var rates Rates
		if jsonErr := json.Unmarshal(raw, &rates); jsonErr == nil && len(rates.Rates) > 0 {
			return &rates, nil
		}
		s.logger.Warn("discarding unreadable rate cache")
	} else if !errors.Is(err, redis.Nil) {
		s.logger.Warn("read rate cache failed", zap.Error(err))
		return s.configRates(), nil
	}

	rates := s.configRates()
	data, err := json.Marshal(rates)
	if err != nil {
		return nil, fmt.Errorf("marshal rates: %w", err)
	}
	if err := s.redis.Set(ctx, RatesKey, data, s.cfg.CacheTTL).Err(); err != nil {
		s.logger.Warn("write rate cache failed", zap.Error(err))
	}
	return rates, nil
}

// ConvertCurrency converts amount, rounded to 2 places
func (s *CurrencyService) ConvertCurrency(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	from, to = strings.ToUpper(strings.TrimSpace(from)), strings.ToUpper(strings.TrimSpace(to))
	if from == to {
		return amount.Round(2), nil
	}
	rates, err := s.GetRates(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	fromRate, ok := rates.Rates[from]
	if !ok {
		return decimal.Zero, &UserError{Kind: ErrUnknownCurrency, Msg: fmt.Sprintf("unknown currency %s", from)}
	}
	toRate, ok := rates.Rates[to]
	if !ok {
		return decimal.Zero, &UserError{Kind: ErrUnknownCurrency, Msg: fmt.Sprintf("unknown currency %s", to)}
	}
	return amount.Div(fromRate).Mul(toRate).Round(2), nil
}
