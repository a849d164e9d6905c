/*
Copyright 2025 CampusPay Authors.

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

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// RequestRefund is the body of POST /transactions/:id/refunds. A nil amount
// requests a full refund of whatever remains refundable.
type RequestRefund struct {
	Amount      *int64 `json:"amount"`
	Reason      string `json:"reason"`
	InitiatedBy string `json:"initiated_by"`
}

func (r *RequestRefund) ValidateRequestRefund() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Amount, validation.By(func(value interface{}) error {
			if r.Amount != nil && *r.Amount <= 0 {
				return validation.NewError("validation_amount", "amount must be positive when provided")
			}
			return nil
		})),
		validation.Field(&r.Reason, validation.Length(0, 500)),
		validation.Field(&r.InitiatedBy, validation.Required),
	)
}

// RequestRetry is the body of POST /transactions/:id/retries.
type RequestRetry struct {
	RequestedBy string `json:"requested_by"`
}

func (r *RequestRetry) ValidateRequestRetry() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.RequestedBy, validation.Required),
	)
}

// SubmitEvidence is the body of POST /disputes/:id/evidence.
type SubmitEvidence struct {
	SubmittedBy string                 `json:"submitted_by"`
	Evidence    map[string]interface{} `json:"evidence"`
}

func (s *SubmitEvidence) ValidateSubmitEvidence() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.SubmittedBy, validation.Required),
		validation.Field(&s.Evidence, validation.Required),
	)
}

// ResolveAlert is the body of POST /fraud-alerts/:id/resolve.
type ResolveAlert struct {
	Action     string `json:"action"`
	Notes      string `json:"notes"`
	ResolvedBy string `json:"resolved_by"`
}

func (r *ResolveAlert) ValidateResolveAlert() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Action, validation.Required, validation.In("investigate", "resolve", "false_positive")),
		validation.Field(&r.ResolvedBy, validation.Required),
		validation.Field(&r.Notes, validation.Length(0, 2000)),
	)
}
