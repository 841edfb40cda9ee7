package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment - факт поступившей оплаты по заказу. Шлюзы здесь не участвуют.
type Payment struct {
	ID              int64
	OrderID         int64
	PaymentMethodID int64
	Amount          decimal.Decimal
	TransactionID   string // Может быть пустым, если поставщик не вернул идентификатор.
	PaymentDate     time.Time
	CreatedAt       time.Time
}

// Validate проверяет корректность полей платежа и возвращает ошибки, если они есть.
func (p *Payment) Validate() []error {
	var errs []error

	if p.OrderID <= 0 {
		errs = append(errs, ErrOrderIDRequired)
	}
	if p.PaymentMethodID <= 0 {
		errs = append(errs, ErrPaymentMethodRequired)
	}
	if !p.Amount.IsPositive() {
		errs = append(errs, ErrPaymentAmountInvalid)
	}

	return errs
}
