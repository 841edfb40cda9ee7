package domain

import (
	"errors"
	"fmt"
)

// Ошибки валидации входных данных.
var (
	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = errors.New("customer_id is required")
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отсутствующей ссылки на вариант товара.
	ErrItemVariantRequired = errors.New("item variant_id is required")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item quantity must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item unit_price must be non-negative")
	// Ошибка отрицательной стоимости доставки.
	ErrShippingCostNegative = errors.New("shipping_cost must be non-negative")
	// Ошибка несоответствия итога заказа сумме позиций и доставки.
	ErrOrderTotalMismatch = errors.New("order total does not match items and shipping")
	// Ошибка отсутствующего адреса доставки.
	ErrShippingAddressRequired = errors.New("shipping_address is required")
	// Ошибка отсутствующего идентификатора заказа.
	ErrOrderIDRequired = errors.New("order_id is required")
	// Ошибка отсутствующей причины отмены.
	ErrReasonRequired = errors.New("reason is required")
	// Ошибка неизвестного статуса.
	ErrStatusUnknown = errors.New("unknown status")
	// Ошибка отсутствующего ИНН/налогового номера получателя.
	ErrReceiverTaxIDRequired = errors.New("receiver_tax_id is required")
	// Ошибка отсутствующего имени получателя.
	ErrReceiverNameRequired = errors.New("receiver_name is required")
	// Ошибка отрицательной суммы в документе.
	ErrAmountNegative = errors.New("amount must be non-negative")
	// ErrAmountMismatch - total_amount не равен subtotal + tax_amount в пределах допуска округления.
	ErrAmountMismatch = errors.New("total_amount does not match subtotal + tax_amount")
	// Ошибка неизвестного типа документа.
	ErrDocumentTypeUnknown = errors.New("unknown document type")
	// Ошибка неизвестного типа счёта.
	ErrInvoiceTypeUnknown = errors.New("unknown invoice type")
	// Ошибка отсутствующего кода серии.
	ErrSeriesCodeRequired = errors.New("series code is required")
	// Ошибка некорректного номера документа.
	ErrDocumentNumberInvalid = errors.New("document number must be an 8-digit correlative")
	// Ошибка отсутствующего трек-номера.
	ErrTrackingNumberRequired = errors.New("tracking_number is required")
	// Ошибка неизвестного типа отгрузки.
	ErrShipmentTypeUnknown = errors.New("unknown shipment type")
	// Ошибка некорректного веса отгрузки.
	ErrWeightInvalid = errors.New("weight_kg must be greater than zero")
	// Ошибка некорректного количества мест.
	ErrPackageQuantityInvalid = errors.New("package_quantity must be greater than zero")
	// Ошибка отсутствующей даты события трекинга.
	ErrEventDateRequired = errors.New("event_date is required")
	// Ошибка неположительной суммы платежа.
	ErrPaymentAmountInvalid = errors.New("payment amount must be greater than zero")
	// Ошибка отсутствующего способа оплаты.
	ErrPaymentMethodRequired = errors.New("payment_method_id is required")
)

// Ошибки отсутствующих сущностей.
var (
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrSeriesNotFound возвращается, если серия документов не найдена.
	ErrSeriesNotFound = errors.New("document series not found")
	// ErrInvoiceNotFound возвращается, если счёт не найден.
	ErrInvoiceNotFound = errors.New("invoice not found")
	// ErrShipmentNotFound возвращается, если отгрузка не найдена.
	ErrShipmentNotFound = errors.New("shipment not found")
	// ErrShippingMethodNotFound возвращается для неизвестного способа доставки.
	ErrShippingMethodNotFound = errors.New("shipping method not found")
	// ErrPaymentNotFound возвращается, если платёж не найден.
	ErrPaymentNotFound = errors.New("payment not found")
)

// Ошибки конфликта состояния.
var (
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrOrderNumberTaken - номер заказа уже занят другим заказом.
	ErrOrderNumberTaken = errors.New("order number already exists")
	// ErrInvalidTransition - целевой статус не является прямым преемником текущего.
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrPreconditionFailed - не выполнено условие перехода (оплата, отгрузка).
	ErrPreconditionFailed = errors.New("transition precondition failed")
	// ErrSeriesAlreadyExists - серия с таким типом и кодом уже существует.
	ErrSeriesAlreadyExists = errors.New("document series already exists")
	// ErrSeriesInactive - серия выключена и не выдаёт номера.
	ErrSeriesInactive = errors.New("document series is inactive")
	// ErrSeriesExhausted - счётчик серии достиг максимума 8-значного номера.
	ErrSeriesExhausted = errors.New("document series is exhausted")
	// ErrSeriesNumberRegression - ручная корректировка пытается уменьшить счётчик.
	ErrSeriesNumberRegression = errors.New("document series number cannot decrease")
	// ErrOrderNotEligible - заказ не в том статусе, чтобы выставлять документ.
	ErrOrderNotEligible = errors.New("order is not eligible for invoicing")
	// ErrOrderAlreadyInvoiced - у заказа уже есть неотменённый документ.
	ErrOrderAlreadyInvoiced = errors.New("order already has an active invoice")
	// ErrSeriesTypeMismatch - тип серии не соответствует типу документа.
	ErrSeriesTypeMismatch = errors.New("series document type does not match invoice type")
	// ErrDuplicateDocumentNumber - пара серия+номер уже занята.
	ErrDuplicateDocumentNumber = errors.New("document number already used in series")
	// ErrInvalidInvoiceStatus - недопустимый переход статуса счёта.
	ErrInvalidInvoiceStatus = errors.New("invalid invoice status transition")
	// ErrDuplicateTrackingNumber - трек-номер уже используется.
	ErrDuplicateTrackingNumber = errors.New("tracking number already exists")
	// ErrOrderNotEligibleForShipment - заказ ещё не оплачен или уже закрыт.
	ErrOrderNotEligibleForShipment = errors.New("order is not eligible for shipment")
	// ErrActiveShipmentExists - у заказа уже есть активная исходящая отгрузка.
	ErrActiveShipmentExists = errors.New("order already has an active outbound shipment")
	// ErrShipmentNotPending - операция допустима только для отгрузки в статусе PENDING.
	ErrShipmentNotPending = errors.New("shipment is not pending")
	// ErrShipmentInUse - отгрузка уже подтверждает статус заказа SHIPPED/DELIVERED.
	ErrShipmentInUse = errors.New("shipment backs a shipped order")
	// ErrInvalidShipmentTransition - недопустимый переход статуса отгрузки.
	ErrInvalidShipmentTransition = errors.New("invalid shipment status transition")
	// ErrOutOfOrderEvent - событие трекинга раньше последнего записанного.
	ErrOutOfOrderEvent = errors.New("tracking event is older than the latest event")
	// ErrShipmentStatusConflict - статус отгрузки изменился параллельно.
	ErrShipmentStatusConflict = errors.New("shipment status changed concurrently")
	// ErrInvoiceStatusConflict - статус счёта изменился параллельно.
	ErrInvoiceStatusConflict = errors.New("invoice status changed concurrently")
	// ErrDuplicatePaymentTransaction - платёж с таким transaction_id уже записан.
	ErrDuplicatePaymentTransaction = errors.New("payment transaction already recorded")
)

// Ошибки риска консистентности и инфраструктуры.
var (
	// ErrInvoicePersistFailed - номер выдан, но документ не сохранён; номер становится пропуском.
	ErrInvoicePersistFailed = errors.New("invoice persistence failed after number allocation")
	// ErrOutboxPublish - ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// ErrorKind классифицирует ошибку для вызывающей стороны.
type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"
	KindNotFound    ErrorKind = "not_found"
	KindConflict    ErrorKind = "conflict"
	KindConsistency ErrorKind = "consistency"
	KindInternal    ErrorKind = "internal"
)

// Error несёт вид ошибки, sentinel-код и проблемное поле/идентификатор.
type Error struct {
	Kind    ErrorKind
	Code    error
	Field   string
	ID      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Code != nil {
		msg = e.Code.Error()
	}
	switch {
	case e.Field != "" && e.ID != "":
		msg = fmt.Sprintf("%s (field=%s, id=%s)", msg, e.Field, e.ID)
	case e.Field != "":
		msg = fmt.Sprintf("%s (field=%s)", msg, e.Field)
	case e.ID != "":
		msg = fmt.Sprintf("%s (id=%s)", msg, e.ID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap открывает и sentinel-код, и исходную причину для errors.Is/As.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Code != nil {
		errs = append(errs, e.Code)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// ValidationError создаёт ошибку валидации по полю.
func ValidationError(code error, field string) *Error {
	return &Error{Kind: KindValidation, Code: code, Field: field}
}

// NotFoundError создаёт ошибку отсутствующей сущности.
func NotFoundError(code error, id any) *Error {
	return &Error{Kind: KindNotFound, Code: code, ID: fmt.Sprint(id)}
}

// ConflictError создаёт ошибку конфликта состояния.
func ConflictError(code error, id any, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, ID: fmt.Sprint(id), Message: message}
}

// PreconditionError называет невыполненное условие перехода.
func PreconditionError(orderID int64, field, message string) *Error {
	return &Error{
		Kind:    KindConflict,
		Code:    ErrPreconditionFailed,
		Field:   field,
		ID:      fmt.Sprint(orderID),
		Message: message,
	}
}

// ConsistencyError помечает ошибку, после которой вызывающий может повторить запрос.
func ConsistencyError(code error, id string, cause error) *Error {
	return &Error{Kind: KindConsistency, Code: code, ID: id, Err: cause}
}

// fieldBySentinel называет поле запроса для ошибок валидации из Validate-методов.
var fieldBySentinel = map[error]string{
	ErrCustomerRequired:        "customer_id",
	ErrCurrencyRequired:        "currency",
	ErrItemsRequired:           "items",
	ErrItemVariantRequired:     "items.variant_id",
	ErrItemQtyInvalid:          "items.quantity",
	ErrItemPriceInvalid:        "items.unit_price",
	ErrShippingCostNegative:    "shipping_cost",
	ErrOrderTotalMismatch:      "total",
	ErrShippingAddressRequired: "shipping_address",
	ErrOrderIDRequired:         "order_id",
	ErrTrackingNumberRequired:  "tracking_number",
	ErrShipmentTypeUnknown:     "shipment_type",
	ErrWeightInvalid:           "weight_kg",
	ErrPackageQuantityInvalid:  "package_quantity",
	ErrPaymentAmountInvalid:    "amount",
	ErrPaymentMethodRequired:   "payment_method_id",
}

// ValidationErrors превращает список замечаний в одну ошибку валидации.
// Каждое замечание сохраняет sentinel и поле, errors.Is работает по любому из них.
func ValidationErrors(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return ValidationError(errs[0], fieldBySentinel[errs[0]])
	}
	wrapped := make([]error, 0, len(errs))
	for _, err := range errs {
		wrapped = append(wrapped, ValidationError(err, fieldBySentinel[err]))
	}
	return errors.Join(wrapped...)
}

var kindBySentinel = map[error]ErrorKind{
	ErrCustomerRequired:        KindValidation,
	ErrCurrencyRequired:        KindValidation,
	ErrItemsRequired:           KindValidation,
	ErrItemVariantRequired:     KindValidation,
	ErrItemQtyInvalid:          KindValidation,
	ErrItemPriceInvalid:        KindValidation,
	ErrShippingCostNegative:    KindValidation,
	ErrOrderTotalMismatch:      KindValidation,
	ErrShippingAddressRequired: KindValidation,
	ErrOrderIDRequired:         KindValidation,
	ErrReasonRequired:          KindValidation,
	ErrStatusUnknown:           KindValidation,
	ErrReceiverTaxIDRequired:   KindValidation,
	ErrReceiverNameRequired:    KindValidation,
	ErrAmountNegative:          KindValidation,
	ErrAmountMismatch:          KindValidation,
	ErrDocumentTypeUnknown:     KindValidation,
	ErrInvoiceTypeUnknown:      KindValidation,
	ErrSeriesCodeRequired:      KindValidation,
	ErrDocumentNumberInvalid:   KindValidation,
	ErrTrackingNumberRequired:  KindValidation,
	ErrShipmentTypeUnknown:     KindValidation,
	ErrWeightInvalid:           KindValidation,
	ErrPackageQuantityInvalid:  KindValidation,
	ErrEventDateRequired:       KindValidation,
	ErrPaymentAmountInvalid:    KindValidation,
	ErrPaymentMethodRequired:   KindValidation,
	ErrIdempotencyKeyRequired:  KindValidation,

	ErrOrderNotFound:         KindNotFound,
	ErrSeriesNotFound:         KindNotFound,
	ErrInvoiceNotFound:        KindNotFound,
	ErrShipmentNotFound:       KindNotFound,
	ErrShippingMethodNotFound: KindNotFound,
	ErrPaymentNotFound:        KindNotFound,

	ErrOrderVersionConflict:        KindConflict,
	ErrOrderNumberTaken:            KindConflict,
	ErrInvalidTransition:           KindConflict,
	ErrPreconditionFailed:          KindConflict,
	ErrSeriesAlreadyExists:         KindConflict,
	ErrSeriesInactive:              KindConflict,
	ErrSeriesExhausted:             KindConflict,
	ErrSeriesNumberRegression:      KindConflict,
	ErrOrderNotEligible:            KindConflict,
	ErrOrderAlreadyInvoiced:        KindConflict,
	ErrSeriesTypeMismatch:          KindConflict,
	ErrDuplicateDocumentNumber:     KindConflict,
	ErrInvalidInvoiceStatus:        KindConflict,
	ErrDuplicateTrackingNumber:     KindConflict,
	ErrOrderNotEligibleForShipment: KindConflict,
	ErrActiveShipmentExists:        KindConflict,
	ErrShipmentNotPending:          KindConflict,
	ErrShipmentInUse:               KindConflict,
	ErrInvalidShipmentTransition:   KindConflict,
	ErrOutOfOrderEvent:             KindConflict,
	ErrShipmentStatusConflict:      KindConflict,
	ErrInvoiceStatusConflict:       KindConflict,
	ErrDuplicatePaymentTransaction: KindConflict,
	ErrIdempotencyKeyAlreadyExists: KindConflict,
	ErrIdempotencyHashMismatch:     KindConflict,

	ErrInvoicePersistFailed: KindConsistency,
}

// KindOf возвращает вид ошибки; неизвестные ошибки считаются внутренними.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) && de.Kind != "" {
		return de.Kind
	}
	for sentinel, kind := range kindBySentinel {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindInternal
}

// CodeOf возвращает sentinel-код ошибки, если он известен.
func CodeOf(err error) error {
	var de *Error
	if errors.As(err, &de) && de.Code != nil {
		return de.Code
	}
	for sentinel := range kindBySentinel {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return nil
}

// IsRetryable сообщает, имеет ли смысл повторить запрос без изменений.
func IsRetryable(err error) bool {
	return KindOf(err) == KindConsistency || IsVersionConflict(err)
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}
