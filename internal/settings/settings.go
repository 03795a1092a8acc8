// Package settings loads the checkout settings snapshot from a YAML document.
package settings

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fjod/posify/internal/domain"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

var ErrInvalidSettings = errors.New("invalid settings")

type fileSettings struct {
	Version          int     `yaml:"version"`
	OrganizationID   string  `yaml:"organization_id"`
	Currency         string  `yaml:"currency"`
	CurrencyDecimals *int32  `yaml:"currency_decimals"`
	Taxes            []tax   `yaml:"taxes"`
	Business         bizSect `yaml:"business"`
	Operational      opsSect `yaml:"operational"`
}

type tax struct {
	ID      string          `yaml:"id"`
	Name    string          `yaml:"name"`
	Rate    decimal.Decimal `yaml:"rate"`
	Kind    string          `yaml:"kind"`
	Enabled *bool           `yaml:"enabled"`
}

type bizSect struct {
	ServiceCharge struct {
		Enabled    bool            `yaml:"enabled"`
		Percentage decimal.Decimal `yaml:"percentage"`
		ApplyOn    string          `yaml:"apply_on"`
	} `yaml:"service_charge"`
	Tipping struct {
		Enabled     bool              `yaml:"enabled"`
		Percentages []decimal.Decimal `yaml:"percentages"`
		AllowCustom bool              `yaml:"allow_custom"`
	} `yaml:"tipping"`
}

type opsSect struct {
	DeliverySettings struct {
		Enabled        bool            `yaml:"enabled"`
		DeliveryCharge decimal.Decimal `yaml:"delivery_charge"`
	} `yaml:"delivery_settings"`
	OrderManagement struct {
		DefaultStatus string `yaml:"default_status"`
	} `yaml:"order_management"`
}

func LoadFile(path string) (domain.Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("read settings: %w", err)
	}
	return Load(bytes.NewReader(data))
}

func Load(r io.Reader) (domain.Settings, error) {
	var f fileSettings
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return domain.Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	s := f.toDomain()
	if err := Validate(s); err != nil {
		return domain.Settings{}, err
	}
	return s, nil
}

func (f fileSettings) toDomain() domain.Settings {
	decimals := int32(2)
	if f.CurrencyDecimals != nil {
		decimals = *f.CurrencyDecimals
	}

	taxes := make([]domain.TaxRule, 0, len(f.Taxes))
	for _, t := range f.Taxes {
		enabled := true
		if t.Enabled != nil {
			enabled = *t.Enabled
		}
		taxes = append(taxes, domain.TaxRule{
			ID:      t.ID,
			Name:    t.Name,
			Rate:    t.Rate,
			Kind:    domain.TaxKind(strings.ToLower(t.Kind)),
			Enabled: enabled,
		})
	}

	sc := f.Business.ServiceCharge
	applyOn := domain.ServiceChargeBase(strings.ToLower(sc.ApplyOn))
	if applyOn == "" {
		applyOn = domain.ServiceChargeOnSubtotal
	}

	status := f.Operational.OrderManagement.DefaultStatus
	if status == "" {
		status = "pending"
	}

	return domain.Settings{
		Version:          f.Version,
		OrganizationID:   f.OrganizationID,
		Currency:         strings.ToUpper(f.Currency),
		CurrencyDecimals: decimals,
		Taxes:            taxes,
		Business: domain.BusinessSettings{
			ServiceCharge: domain.ServiceChargeRule{
				Enabled:    sc.Enabled,
				Percentage: sc.Percentage,
				ApplyOn:    applyOn,
			},
			Tipping: domain.TippingRule{
				Enabled:     f.Business.Tipping.Enabled,
				Percentages: append([]decimal.Decimal(nil), f.Business.Tipping.Percentages...),
				AllowCustom: f.Business.Tipping.AllowCustom,
			},
		},
		Operational: domain.OperationalSettings{
			DeliverySettings: domain.DeliverySettings{
				Enabled:        f.Operational.DeliverySettings.Enabled,
				DeliveryCharge: f.Operational.DeliverySettings.DeliveryCharge,
			},
			OrderManagement: domain.OrderManagement{DefaultStatus: status},
		},
	}
}

// Validate reports the first problem that would make checkout unsafe.
func Validate(s domain.Settings) error {
	if s.Version <= 0 {
		return fmt.Errorf("%w: version must be positive", ErrInvalidSettings)
	}
	if s.OrganizationID == "" {
		return fmt.Errorf("%w: organization_id is required", ErrInvalidSettings)
	}
	if len(s.Currency) != 3 {
		return fmt.Errorf("%w: currency must be an ISO 4217 code", ErrInvalidSettings)
	}
	if s.CurrencyDecimals < 0 || s.CurrencyDecimals > 4 {
		return fmt.Errorf("%w: currency_decimals out of range", ErrInvalidSettings)
	}
	seen := make(map[string]struct{}, len(s.Taxes))
	for _, t := range s.Taxes {
		if t.ID == "" {
			return fmt.Errorf("%w: tax without id", ErrInvalidSettings)
		}
		if _, dup := seen[t.ID]; dup {
			return fmt.Errorf("%w: duplicate tax id %q", ErrInvalidSettings, t.ID)
		}
		seen[t.ID] = struct{}{}
		if t.Kind != domain.TaxKindPercentage && t.Kind != domain.TaxKindFixed {
			return fmt.Errorf("%w: tax %q has unknown kind %q", ErrInvalidSettings, t.ID, t.Kind)
		}
		if t.Rate.IsNegative() {
			return fmt.Errorf("%w: tax %q has a negative rate", ErrInvalidSettings, t.ID)
		}
	}
	sc := s.Business.ServiceCharge
	if sc.ApplyOn != domain.ServiceChargeOnSubtotal && sc.ApplyOn != domain.ServiceChargeOnTotal {
		return fmt.Errorf("%w: service_charge.apply_on must be subtotal or total", ErrInvalidSettings)
	}
	if sc.Percentage.IsNegative() {
		return fmt.Errorf("%w: service_charge.percentage is negative", ErrInvalidSettings)
	}
	if s.Operational.DeliverySettings.DeliveryCharge.IsNegative() {
		return fmt.Errorf("%w: delivery_charge is negative", ErrInvalidSettings)
	}
	return nil
}
