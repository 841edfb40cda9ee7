package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceType - вид документа, который выдаёт InvoiceIssuer.
type InvoiceType string

const (
	InvoiceTypeBill    InvoiceType = "BILL"
	InvoiceTypeInvoice InvoiceType = "INVOICE"
)

// DocumentType возвращает тип серии, из которой можно нумеровать документ.
func (t InvoiceType) DocumentType() (DocumentType, bool) {
	switch t {
	case InvoiceTypeBill:
		return DocumentTypeBill, true
	case InvoiceTypeInvoice:
		return DocumentTypeInvoice, true
	default:
		return "", false
	}
}

// InvoiceStatus - статус выданного документа.
type InvoiceStatus string

const (
	InvoiceStatusIssued    InvoiceStatus = "ISSUED"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
	InvoiceStatusRejected  InvoiceStatus = "REJECTED"
)

// Valid проверяет, что статус известен.
func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusIssued, InvoiceStatusCancelled, InvoiceStatusRejected:
		return true
	default:
		return false
	}
}

// CanTransitionTo: из ISSUED можно только в CANCELLED или REJECTED.
func (s InvoiceStatus) CanTransitionTo(target InvoiceStatus) bool {
	return s == InvoiceStatusIssued && (target == InvoiceStatusCancelled || target == InvoiceStatusRejected)
}

// IsActive - отменённый документ не блокирует выставление нового по заказу.
func (s InvoiceStatus) IsActive() bool {
	return s != InvoiceStatusCancelled
}

// AmountTolerance - допуск округления при сверке total = subtotal + tax.
var AmountTolerance = decimal.New(5, -3)

// Invoice - неизменяемый по номеру налоговый документ, привязанный к заказу 1:1.
type Invoice struct {
	ID            int64
	OrderID       int64
	Type          InvoiceType
	SeriesID      int64
	SeriesCode    string
	Number        string
	ReceiverTaxID string
	ReceiverName  string
	Currency      string
	Subtotal      decimal.Decimal
	TaxAmount     decimal.Decimal
	TotalAmount   decimal.Decimal
	Status        InvoiceStatus
	StatusReason  string
	IssuedAt      time.Time
	UpdatedAt     time.Time
}

// MoneyScale - число знаков после запятой у денежных сумм в хранилище.
const MoneyScale = 2

// RoundMoney приводит сумму к точности хранения, чтобы memory и postgres хранили одно и то же.
func RoundMoney(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(MoneyScale)
}

// CheckAmounts проверяет суммы документа до любой мутации состояния.
func CheckAmounts(subtotal, tax, total decimal.Decimal) error {
	switch {
	case subtotal.IsNegative():
		return ValidationError(ErrAmountNegative, "subtotal")
	case tax.IsNegative():
		return ValidationError(ErrAmountNegative, "tax_amount")
	case total.IsNegative():
		return ValidationError(ErrAmountNegative, "total_amount")
	}
	if subtotal.Add(tax).Sub(total).Abs().GreaterThan(AmountTolerance) {
		return ValidationError(ErrAmountMismatch, "total_amount")
	}
	return nil
}
