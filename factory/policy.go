/*
Package factory provides JSON to Go policy conversion.

PURPOSE:
  Converts JSON policy and category definitions into engine structs. This
  enables policy configuration without code changes - HR can define
  policies in JSON, and the factory creates the proper Go structs and
  loads them into a store.

JSON SCHEMA:
  {
    "categories": [
      {"id": "vacation", "name": "Vacation"}
    ],
    "policies": [
      {
        "id": "vacation-standard",
        "name": "Standard vacation",
        "category_id": "vacation",
        "type": "balancer",
        "amount_minutes": 9600,
        "start_day": 1, "start_month": 1,
        "end_day": 1, "end_month": 4,
        "years_to_effect": 0,
        "reset": false
      }
    ]
  }

  Balancer policies need an end anniversary (end_day/end_month); counter
  policies omit it and never expire. Each category should also declare one
  policy with "reset": true, used to bridge post-contract gaps.

USAGE:
  cfg, err := factory.ParseConfig(jsonBytes)
  ...
  err = factory.Load(ctx, store, cfg)

SEE ALSO:
  - engine/policy.go: TimeOffPolicy and Category definitions
*/
package factory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/avincentLoyco/yalty-backend-sub001/engine"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

type Config struct {
	Categories []CategoryJSON `json:"categories"`
	Policies   []PolicyJSON   `json:"policies"`
}

type CategoryJSON struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PolicyJSON is the JSON representation of a time-off policy.
type PolicyJSON struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	CategoryID    string `json:"category_id"`
	Type          string `json:"type"` // counter, balancer
	AmountMinutes int64  `json:"amount_minutes,omitempty"`
	StartDay      int    `json:"start_day,omitempty"`
	StartMonth    int    `json:"start_month,omitempty"`
	EndDay        int    `json:"end_day,omitempty"`
	EndMonth      int    `json:"end_month,omitempty"`
	YearsToEffect int    `json:"years_to_effect,omitempty"`
	Reset         bool   `json:"reset,omitempty"`
}

// =============================================================================
// PARSING
// =============================================================================

// ParseConfig parses and validates a JSON config document.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse policy config: %w", err)
	}

	known := map[string]bool{}
	for _, c := range cfg.Categories {
		if c.ID == "" {
			return nil, fmt.Errorf("category with empty id")
		}
		known[c.ID] = true
	}
	for _, p := range cfg.Policies {
		if p.CategoryID == "" || !known[p.CategoryID] {
			return nil, fmt.Errorf("policy %q references unknown category %q", p.ID, p.CategoryID)
		}
	}
	return &cfg, nil
}

// ParseConfigFile reads and parses a config file.
func ParseConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy config: %w", err)
	}
	return ParseConfig(data)
}

// Policy converts one JSON policy to its engine form and validates it.
func (pj PolicyJSON) Policy() (*engine.TimeOffPolicy, error) {
	p := &engine.TimeOffPolicy{
		ID:            pj.ID,
		Name:          pj.Name,
		CategoryID:    pj.CategoryID,
		Type:          engine.PolicyType(pj.Type),
		Amount:        engine.NewMinutes(pj.AmountMinutes),
		StartDay:      pj.StartDay,
		StartMonth:    time.Month(pj.StartMonth),
		EndDay:        pj.EndDay,
		EndMonth:      time.Month(pj.EndMonth),
		YearsToEffect: pj.YearsToEffect,
		Reset:         pj.Reset,
	}
	if p.StartDay == 0 {
		p.StartDay = 1
	}
	if p.StartMonth == 0 {
		p.StartMonth = time.January
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// =============================================================================
// LOADING
// =============================================================================

// Load writes every category and policy of the config into the store.
func Load(ctx context.Context, store engine.Store, cfg *Config) error {
	for _, cj := range cfg.Categories {
		category := engine.Category{ID: cj.ID, Name: cj.Name}
		if err := store.SaveCategory(ctx, &category); err != nil {
			return err
		}
	}
	for _, pj := range cfg.Policies {
		policy, err := pj.Policy()
		if err != nil {
			return err
		}
		if err := store.SavePolicy(ctx, policy); err != nil {
			return err
		}
	}
	return nil
}

// ToJSON converts an engine policy back to its JSON form.
func ToJSON(p *engine.TimeOffPolicy) PolicyJSON {
	pj := PolicyJSON{
		ID:            p.ID,
		Name:          p.Name,
		CategoryID:    p.CategoryID,
		Type:          string(p.Type),
		StartDay:      p.StartDay,
		StartMonth:    int(p.StartMonth),
		YearsToEffect: p.YearsToEffect,
		Reset:         p.Reset,
	}
	pj.AmountMinutes = p.Amount.Value.IntPart()
	if p.HasEnd() {
		pj.EndDay = p.EndDay
		pj.EndMonth = int(p.EndMonth)
	}
	return pj
}
