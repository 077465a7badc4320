// Package fees knows each exchange's fee schedule and derives fee
// classifications and breakdowns from journaled trades.
package fees

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/simaogato/tradejournal-backend/internal/domain"
)

//go:embed schedule.yaml
var embeddedSchedule []byte

// DefaultExchange is the schedule entry used for unknown exchanges
const DefaultExchange = "default"

// Tolerance is the relative distance from a published rate that still counts as that rate
var Tolerance = decimal.RequireFromString("0.1")

// ExchangeFees is one exchange's published schedule
type ExchangeFees struct {
	Exchange              string
	MakerRate             decimal.Decimal
	TakerRate             decimal.Decimal
	MaxLeverage           int
	MaintenanceMarginRate decimal.Decimal
	FundingInterval       time.Duration
}

type rawExchange struct {
	MakerRate             string `yaml:"maker_rate"`
	TakerRate             string `yaml:"taker_rate"`
	MaxLeverage           int    `yaml:"max_leverage"`
	MaintenanceMarginRate string `yaml:"maintenance_margin_rate"`
	FundingInterval       string `yaml:"funding_interval"`
}

type rawSchedule struct {
	Exchanges map[string]rawExchange `yaml:"exchanges"`
}

// Schedule is the catalog of exchange fee schedules
type Schedule struct {
	exchanges map[string]ExchangeFees
}

// DefaultSchedule returns the schedule compiled into the binary
func DefaultSchedule() *Schedule {
	s, err := ParseSchedule(embeddedSchedule)
	if err != nil {
		panic(fmt.Sprintf("embedded fee schedule is invalid: %v", err))
	}
	return s
}

// LoadSchedule reads a schedule from path, or returns the embedded one when path is empty
func LoadSchedule(path string) (*Schedule, error) {
	if path == "" {
		return DefaultSchedule(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fee schedule: %w", err)
	}
	return ParseSchedule(data)
}

// ParseSchedule decodes a YAML schedule. It must contain a default entry.
func ParseSchedule(data []byte) (*Schedule, error) {
	var raw rawSchedule
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse fee schedule: %w", err)
	}

	s := &Schedule{exchanges: make(map[string]ExchangeFees, len(raw.Exchanges))}
	for name, r := range raw.Exchanges {
		name = strings.ToLower(strings.TrimSpace(name))
		ef, err := r.parse(name)
		if err != nil {
			return nil, err
		}
		s.exchanges[name] = ef
	}
	if _, ok := s.exchanges[DefaultExchange]; !ok {
		return nil, fmt.Errorf("fee schedule has no %q entry", DefaultExchange)
	}
	return s, nil
}

func (r rawExchange) parse(name string) (ExchangeFees, error) {
	ef := ExchangeFees{Exchange: name, MaxLeverage: r.MaxLeverage}
	var err error
	if ef.MakerRate, err = decimal.NewFromString(r.MakerRate); err != nil {
		return ef, fmt.Errorf("%s: invalid maker_rate: %w", name, err)
	}
	if ef.TakerRate, err = decimal.NewFromString(r.TakerRate); err != nil {
		return ef, fmt.Errorf("%s: invalid taker_rate: %w", name, err)
	}
	if ef.MaintenanceMarginRate, err = decimal.NewFromString(r.MaintenanceMarginRate); err != nil {
		return ef, fmt.Errorf("%s: invalid maintenance_margin_rate: %w", name, err)
	}
	if r.FundingInterval != "" {
		if ef.FundingInterval, err = time.ParseDuration(r.FundingInterval); err != nil {
			return ef, fmt.Errorf("%s: invalid funding_interval: %w", name, err)
		}
	}
	if ef.MakerRate.IsNegative() || !ef.TakerRate.IsPositive() || ef.TakerRate.LessThan(ef.MakerRate) {
		return ef, fmt.Errorf("%s: rates must satisfy 0 <= maker <= taker", name)
	}
	if ef.MaxLeverage < 1 || ef.MaxLeverage > domain.MaxLeverage {
		return ef, fmt.Errorf("%s: max_leverage must be between 1 and %d", name, domain.MaxLeverage)
	}
	return ef, nil
}

// For returns the schedule of exchange, falling back to the default entry
func (s *Schedule) For(exchange string) ExchangeFees {
	if ef, ok := s.exchanges[strings.ToLower(strings.TrimSpace(exchange))]; ok {
		return ef
	}
	return s.exchanges[DefaultExchange]
}

// Known reports whether exchange has its own entry
func (s *Schedule) Known(exchange string) bool {
	exchange = strings.ToLower(strings.TrimSpace(exchange))
	_, ok := s.exchanges[exchange]
	return ok && exchange != DefaultExchange
}

// Exchanges lists the named exchanges in the schedule, sorted
func (s *Schedule) Exchanges() []string {
	names := make([]string, 0, len(s.exchanges))
	for name := range s.exchanges {
		if name != DefaultExchange {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func within(rate, target decimal.Decimal) bool {
	if target.IsZero() {
		return rate.IsZero()
	}
	return rate.Sub(target).Abs().LessThanOrEqual(target.Mul(Tolerance))
}

// Classify infers the liquidity role from the effective fee rate.
// notional is the total value traded across the fills the fee paid for.
// Rates at or below the maker rate (VIP tiers, rebates) classify as MAKER;
// rates well above the taker rate cannot be explained and are UNKNOWN.
func (s *Schedule) Classify(exchange string, notional, fee decimal.Decimal) domain.FeeType {
	if !notional.IsPositive() || !fee.IsPositive() {
		return domain.FeeTypeUnknown
	}
	ef := s.For(exchange)
	rate := fee.Div(notional)

	switch {
	case within(rate, ef.MakerRate) || rate.LessThan(ef.MakerRate):
		return domain.FeeTypeMaker
	case within(rate, ef.TakerRate):
		return domain.FeeTypeTaker
	case rate.GreaterThan(ef.MakerRate) && rate.LessThan(ef.TakerRate):
		return domain.FeeTypeMixed
	default:
		return domain.FeeTypeUnknown
	}
}

// ClassifyTrade classifies a trade's fees over its entry and, when closed, exit fills
func (s *Schedule) ClassifyTrade(t *domain.Trade) domain.FeeType {
	notional := t.Notional()
	if t.IsClosed() {
		notional = notional.Add(t.ExitPrice.Mul(t.Quantity))
	}
	return s.Classify(t.Exchange, notional, t.Fees)
}

// EstimateRoundTrip is the expected fee for opening and closing notional
func (s *Schedule) EstimateRoundTrip(exchange string, notional decimal.Decimal, feeType domain.FeeType) decimal.Decimal {
	ef := s.For(exchange)
	var rate decimal.Decimal
	switch feeType {
	case domain.FeeTypeMaker:
		rate = ef.MakerRate.Mul(decimal.NewFromInt(2))
	case domain.FeeTypeMixed:
		rate = ef.MakerRate.Add(ef.TakerRate)
	default:
		rate = ef.TakerRate.Mul(decimal.NewFromInt(2))
	}
	return notional.Abs().Mul(rate)
}
