// Copyright 2025 Matthew Gall <me@matthewgall.dev>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// RateTiers configures a percentage based rule. A magnitude at or above Trigger
// (strictly above for gap rules) produces a finding; Medium and High raise its risk.
type RateTiers struct {
	Trigger float64 `yaml:"trigger" json:"trigger" validate:"gt=0"`
	Medium  float64 `yaml:"medium" json:"medium" validate:"gte=0,gtefield=Trigger"`
	High    float64 `yaml:"high" json:"high" validate:"gte=0,gtefield=Medium"`
}

// Risk maps a magnitude that already passed the trigger to a risk level
func (t RateTiers) Risk(magnitude float64) RiskLevel {
	switch {
	case magnitude >= t.High:
		return RiskHigh
	case magnitude >= t.Medium:
		return RiskMedium
	default:
		return RiskLow
	}
}

// ContractTiers configures the contract expiry rule, in whole months
type ContractTiers struct {
	WindowMonths int `yaml:"window_months" json:"window_months" validate:"gte=0"`
	Medium       int `yaml:"medium" json:"medium" validate:"gte=0,ltefield=WindowMonths"`
	High         int `yaml:"high" json:"high" validate:"gte=0,ltefield=Medium"`
}

// Risk maps the months left on a contract to a risk level; expired contracts are high
func (t ContractTiers) Risk(monthsRemaining int) RiskLevel {
	switch {
	case monthsRemaining <= t.High:
		return RiskHigh
	case monthsRemaining <= t.Medium:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Thresholds is the full set of rule parameters supplied to the evaluators
type Thresholds struct {
	QuantityVolatility RateTiers     `yaml:"quantity_volatility" json:"quantity_volatility"`
	PriceVolatility    RateTiers     `yaml:"price_volatility" json:"price_volatility"`
	ContractExpiry     ContractTiers `yaml:"contract_expiry" json:"contract_expiry"`
	InventoryGap       RateTiers     `yaml:"inventory_gap" json:"inventory_gap"`
	OrderGap           RateTiers     `yaml:"order_gap" json:"order_gap"`
}

// DefaultThresholds returns the thresholds used by the purchasing team dashboard.
// The inventory gap trigger is strict and equals its medium tier, so rule 4
// reports medium or high only.
func DefaultThresholds() Thresholds {
	return Thresholds{
		QuantityVolatility: RateTiers{Trigger: 20, Medium: 50, High: 100},
		PriceVolatility:    RateTiers{Trigger: 10, Medium: 15, High: 30},
		ContractExpiry:     ContractTiers{WindowMonths: 3, Medium: 2, High: 1},
		InventoryGap:       RateTiers{Trigger: 50, Medium: 50, High: 100},
		OrderGap:           RateTiers{Trigger: 50, Medium: 80, High: 150},
	}
}

var thresholdValidator = newThresholdValidator()

func newThresholdValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their YAML names so errors point at the config file keys
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks that every rate trigger is positive, no threshold is negative
// and every tier is ordered
func (t Thresholds) Validate() error {
	err := thresholdValidator.Struct(t)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return &ConfigurationError{Field: "thresholds", Message: err.Error()}
	}

	problems := make(ConfigurationErrors, 0, len(validationErrors))
	for _, fe := range validationErrors {
		field := "thresholds." + strings.TrimPrefix(fe.Namespace(), "Thresholds.")
		problems = append(problems, &ConfigurationError{
			Field:   field,
			Message: describeValidation(fe),
		})
	}
	return problems
}

func describeValidation(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gte":
		return fmt.Sprintf("must not be negative (got %v)", fe.Value())
	case "gt":
		return fmt.Sprintf("must be greater than zero (got %v)", fe.Value())
	case "gtefield":
		return fmt.Sprintf("must be greater than or equal to %s (got %v)", toSnake(fe.Param()), fe.Value())
	case "ltefield":
		return fmt.Sprintf("must be less than or equal to %s (got %v)", toSnake(fe.Param()), fe.Value())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// toSnake converts a Go field name such as WindowMonths to window_months
func toSnake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
