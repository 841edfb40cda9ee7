package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestPayment_Validate(t *testing.T) {
	tests := []struct {
		name     string
		payment  *Payment
		errCount int
	}{
		{
			name: "valid payment",
			payment: &Payment{
				OrderID:         1,
				PaymentMethodID: 2,
				Amount:          decimal.RequireFromString("118.00"),
				PaymentDate:     time.Now(),
			},
			errCount: 0,
		},
		{
			name: "missing order ID",
			payment: &Payment{
				PaymentMethodID: 2,
				Amount:          decimal.NewFromInt(10),
			},
			errCount: 1,
		},
		{
			name: "missing method",
			payment: &Payment{
				OrderID: 1,
				Amount:  decimal.NewFromInt(10),
			},
			errCount: 1,
		},
		{
			name: "zero amount",
			payment: &Payment{
				OrderID:         1,
				PaymentMethodID: 2,
			},
			errCount: 1,
		},
		{
			name:     "everything missing",
			payment:  &Payment{Amount: decimal.NewFromInt(-1)},
			errCount: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.payment.Validate()
			if len(errs) != tt.errCount {
				t.Errorf("Validate() returned %d errors, want %d: %v", len(errs), tt.errCount, errs)
			}
		})
	}
}
