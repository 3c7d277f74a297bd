/*
Copyright 2025 Recon Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package model

import validation "github.com/go-ozzo/ozzo-validation/v4"

// MatchRule is one layer of the reconciliation cascade. Tolerance is a
// fraction of the system record's amount (0.02 = 2%); it is only meaningful
// for the partial-match rule.
type MatchRule struct {
	Enabled   bool    `json:"enabled"`
	Tolerance float64 `json:"tolerance"`
}

// ReconciliationRules is the rule cascade as data. Rule order is fixed
// (duplicate, exact, partial); the configuration controls which layers run and
// the partial-match tolerance, so rules change without touching engine logic.
type ReconciliationRules struct {
	Duplicate  MatchRule `json:"duplicate"`
	ExactMatch MatchRule `json:"exact_match"`
	Partial    MatchRule `json:"partial_match"`
}

// DefaultReconciliationRules mirrors the reference configuration: all layers
// enabled, exact match with zero tolerance, partial match within 2%.
func DefaultReconciliationRules() ReconciliationRules {
	return ReconciliationRules{
		Duplicate:  MatchRule{Enabled: true},
		ExactMatch: MatchRule{Enabled: true, Tolerance: 0},
		Partial:    MatchRule{Enabled: true, Tolerance: 0.02},
	}
}

func (r ReconciliationRules) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ExactMatch, validation.By(toleranceInRange)),
		validation.Field(&r.Partial, validation.By(toleranceInRange)),
	)
}

func toleranceInRange(value interface{}) error {
	rule, ok := value.(MatchRule)
	if !ok {
		return validation.NewError("validation_rule", "invalid rule")
	}
	if rule.Tolerance < 0 || rule.Tolerance > 1 {
		return validation.NewError("validation_tolerance", "tolerance must be between 0 and 1")
	}
	return nil
}
