package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollectionPaymentRecord_ApplyDeductions(t *testing.T) {
	r := &CollectionPaymentRecord{Amount: d("400")}
	r.ApplyDeductions(d("200"), d("75"))

	assert.True(t, d("125").Equal(r.NetPayment))
	assert.True(t, r.Balanced())

	r.ApplyDeductions(d("350"), d("75"))
	assert.False(t, r.Balanced(), "deductions exceed the amount")

	r.ApplyDeductions(d("-1"), d("0"))
	assert.False(t, r.Balanced())

	r.ApplyDeductions(d("100"), d("0"))
	r.NetPayment = d("1")
	assert.False(t, r.Balanced())
}

func TestCollection_Payable(t *testing.T) {
	base := Collection{ApprovedForCompany: true, ApprovedForPayment: true, Status: CollectionStatusVerified}
	assert.True(t, base.Payable())
	assert.True(t, base.CountsAsPending())

	unapproved := base
	unapproved.ApprovedForPayment = false
	assert.False(t, unapproved.Payable())
	assert.True(t, unapproved.CountsAsPending())

	paid := base
	paid.Status = CollectionStatusPaid
	assert.False(t, paid.Payable())
	assert.False(t, paid.CountsAsPending())

	cancelled := base
	cancelled.Status = CollectionStatusCancelled
	assert.False(t, cancelled.Payable())
	assert.False(t, cancelled.CountsAsPending())

	notCompany := base
	notCompany.ApprovedForCompany = false
	assert.False(t, notCompany.Payable())
	assert.False(t, notCompany.CountsAsPending())
}

func TestBatchResult_PartialFailure(t *testing.T) {
	r := &BatchResult{}
	assert.False(t, r.PartialFailure())
	r.Failures = append(r.Failures, SettlementFailure{FarmerID: 1, Error: "boom"})
	assert.True(t, r.PartialFailure())
}
