package domain

import (
	"fmt"
	"strconv"
	"time"
)

// DocumentType - тип налогового документа, для которого ведётся нумерация.
type DocumentType string

const (
	DocumentTypeBill       DocumentType = "BILL"
	DocumentTypeInvoice    DocumentType = "INVOICE"
	DocumentTypeCreditNote DocumentType = "CREDIT_NOTE"
)

// Valid проверяет, что тип документа поддерживается.
func (t DocumentType) Valid() bool {
	switch t {
	case DocumentTypeBill, DocumentTypeInvoice, DocumentTypeCreditNote:
		return true
	default:
		return false
	}
}

const (
	// DocumentNumberDigits - ширина корреляционного номера.
	DocumentNumberDigits = 8
	// MaxDocumentNumber - последний номер, который помещается в 8 цифр.
	MaxDocumentNumber int64 = 99999999
)

// DocumentSeries - поток нумерации (например, B001) для одного типа документа.
type DocumentSeries struct {
	ID            int64
	DocumentType  DocumentType
	Code          string
	CurrentNumber int64
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Key возвращает ключ сериализации аллокаций.
func (s DocumentSeries) Key() SeriesKey {
	return SeriesKey{DocumentType: s.DocumentType, Code: s.Code}
}

// SeriesKey идентифицирует серию парой (тип документа, код).
type SeriesKey struct {
	DocumentType DocumentType
	Code         string
}

func (k SeriesKey) String() string {
	return fmt.Sprintf("%s/%s", k.DocumentType, k.Code)
}

// NumberGap фиксирует выданный номер, за которым не стоит сохранённый документ.
type NumberGap struct {
	ID           int64
	SeriesID     int64
	DocumentType DocumentType
	SeriesCode   string
	Number       int64
	Reason       string
	OccurredAt   time.Time
}

// FormatNumber форматирует номер в 8-значную строку с ведущими нулями.
func FormatNumber(n int64) string {
	return fmt.Sprintf("%0*d", DocumentNumberDigits, n)
}

// ParseNumber разбирает 8-значный номер обратно в целое.
func ParseNumber(s string) (int64, error) {
	if len(s) != DocumentNumberDigits {
		return 0, ErrDocumentNumberInvalid
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, ErrDocumentNumberInvalid
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDocumentNumberInvalid, err)
	}
	return n, nil
}
