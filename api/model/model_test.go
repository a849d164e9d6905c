package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRequestRefund(t *testing.T) {
	amount := int64(500)
	valid := RequestRefund{Amount: &amount, Reason: "duplicate_charge", InitiatedBy: "staff_1"}
	assert.NoError(t, valid.ValidateRequestRefund())

	full := RequestRefund{InitiatedBy: "staff_1"}
	assert.NoError(t, full.ValidateRequestRefund(), "a nil amount requests a full refund")

	zero := int64(0)
	invalidAmount := RequestRefund{Amount: &zero, InitiatedBy: "staff_1"}
	assert.Error(t, invalidAmount.ValidateRequestRefund())

	negative := int64(-100)
	negativeAmount := RequestRefund{Amount: &negative, InitiatedBy: "staff_1"}
	assert.Error(t, negativeAmount.ValidateRequestRefund())

	missingInitiator := RequestRefund{Amount: &amount}
	assert.Error(t, missingInitiator.ValidateRequestRefund())
}

func TestValidateRequestRetry(t *testing.T) {
	valid := RequestRetry{RequestedBy: "staff_1"}
	assert.NoError(t, valid.ValidateRequestRetry())

	missing := RequestRetry{}
	assert.Error(t, missing.ValidateRequestRetry())
}

func TestValidateSubmitEvidence(t *testing.T) {
	valid := SubmitEvidence{
		SubmittedBy: "staff_1",
		Evidence:    map[string]interface{}{"receipt_url": "https://example.com/receipt.pdf"},
	}
	assert.NoError(t, valid.ValidateSubmitEvidence())

	missingEvidence := SubmitEvidence{SubmittedBy: "staff_1"}
	assert.Error(t, missingEvidence.ValidateSubmitEvidence())

	missingSubmitter := SubmitEvidence{Evidence: map[string]interface{}{"note": "n"}}
	assert.Error(t, missingSubmitter.ValidateSubmitEvidence())
}

func TestValidateResolveAlert(t *testing.T) {
	for _, action := range []string{"investigate", "resolve", "false_positive"} {
		req := ResolveAlert{Action: action, ResolvedBy: "analyst_1"}
		assert.NoError(t, req.ValidateResolveAlert())
	}

	unknownAction := ResolveAlert{Action: "ignore", ResolvedBy: "analyst_1"}
	assert.Error(t, unknownAction.ValidateResolveAlert())

	missingResolver := ResolveAlert{Action: "resolve"}
	assert.Error(t, missingResolver.ValidateResolveAlert())
}
