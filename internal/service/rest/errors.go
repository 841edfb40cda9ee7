package rest

import (
	"errors"
	"net/http"

	"github.com/vladislavdragonenkov/billing/internal/domain"
)

// errorBody - тело ответа об ошибке.
type errorBody struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Kind      domain.ErrorKind `json:"kind"`
	Code      string           `json:"code"`
	Message   string           `json:"message"`
	Field     string           `json:"field,omitempty"`
	ID        string           `json:"id,omitempty"`
	Retryable bool             `json:"retryable"`
	Details   []errorDetail    `json:"details,omitempty"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

var codeNames = map[error]string{
	domain.ErrCustomerRequired:        "CUSTOMER_REQUIRED",
	domain.ErrCurrencyRequired:        "CURRENCY_REQUIRED",
	domain.ErrItemsRequired:           "ITEMS_REQUIRED",
	domain.ErrItemVariantRequired:     "ITEM_VARIANT_REQUIRED",
	domain.ErrItemQtyInvalid:          "ITEM_QUANTITY_INVALID",
	domain.ErrItemPriceInvalid:        "ITEM_PRICE_INVALID",
	domain.ErrShippingCostNegative:    "SHIPPING_COST_NEGATIVE",
	domain.ErrOrderTotalMismatch:      "ORDER_TOTAL_MISMATCH",
	domain.ErrShippingAddressRequired: "SHIPPING_ADDRESS_REQUIRED",
	domain.ErrOrderIDRequired:         "ORDER_ID_REQUIRED",
	domain.ErrReasonRequired:          "REASON_REQUIRED",
	domain.ErrStatusUnknown:           "STATUS_UNKNOWN",
	domain.ErrReceiverTaxIDRequired:   "RECEIVER_TAX_ID_REQUIRED",
	domain.ErrReceiverNameRequired:    "RECEIVER_NAME_REQUIRED",
	domain.ErrAmountNegative:          "AMOUNT_NEGATIVE",
	domain.ErrAmountMismatch:          "AMOUNT_MISMATCH",
	domain.ErrDocumentTypeUnknown:     "DOCUMENT_TYPE_UNKNOWN",
	domain.ErrInvoiceTypeUnknown:      "INVOICE_TYPE_UNKNOWN",
	domain.ErrSeriesCodeRequired:      "SERIES_CODE_REQUIRED",
	domain.ErrDocumentNumberInvalid:   "DOCUMENT_NUMBER_INVALID",
	domain.ErrTrackingNumberRequired:  "TRACKING_NUMBER_REQUIRED",
	domain.ErrShipmentTypeUnknown:     "SHIPMENT_TYPE_UNKNOWN",
	domain.ErrWeightInvalid:           "WEIGHT_INVALID",
	domain.ErrPackageQuantityInvalid:  "PACKAGE_QUANTITY_INVALID",
	domain.ErrEventDateRequired:       "EVENT_DATE_REQUIRED",
	domain.ErrPaymentAmountInvalid:    "PAYMENT_AMOUNT_INVALID",
	domain.ErrPaymentMethodRequired:   "PAYMENT_METHOD_REQUIRED",
	domain.ErrIdempotencyKeyRequired:  "IDEMPOTENCY_KEY_REQUIRED",

	domain.ErrOrderNotFound:          "ORDER_NOT_FOUND",
	domain.ErrSeriesNotFound:         "SERIES_NOT_FOUND",
	domain.ErrInvoiceNotFound:        "INVOICE_NOT_FOUND",
	domain.ErrShipmentNotFound:       "SHIPMENT_NOT_FOUND",
	domain.ErrShippingMethodNotFound: "SHIPPING_METHOD_NOT_FOUND",
	domain.ErrPaymentNotFound:        "PAYMENT_NOT_FOUND",

	domain.ErrOrderVersionConflict:        "VERSION_CONFLICT",
	domain.ErrOrderNumberTaken:            "ORDER_NUMBER_TAKEN",
	domain.ErrInvalidTransition:           "INVALID_TRANSITION",
	domain.ErrPreconditionFailed:          "PRECONDITION_FAILED",
	domain.ErrSeriesAlreadyExists:         "SERIES_ALREADY_EXISTS",
	domain.ErrSeriesInactive:              "SERIES_INACTIVE",
	domain.ErrSeriesExhausted:             "SERIES_EXHAUSTED",
	domain.ErrSeriesNumberRegression:      "SERIES_NUMBER_REGRESSION",
	domain.ErrOrderNotEligible:            "ORDER_NOT_ELIGIBLE",
	domain.ErrOrderAlreadyInvoiced:        "ORDER_ALREADY_INVOICED",
	domain.ErrSeriesTypeMismatch:          "SERIES_TYPE_MISMATCH",
	domain.ErrDuplicateDocumentNumber:     "DUPLICATE_DOCUMENT_NUMBER",
	domain.ErrInvalidInvoiceStatus:        "INVALID_INVOICE_STATUS",
	domain.ErrDuplicateTrackingNumber:     "DUPLICATE_TRACKING_NUMBER",
	domain.ErrOrderNotEligibleForShipment: "ORDER_NOT_ELIGIBLE_FOR_SHIPMENT",
	domain.ErrActiveShipmentExists:        "ACTIVE_SHIPMENT_EXISTS",
	domain.ErrShipmentNotPending:          "SHIPMENT_NOT_PENDING",
	domain.ErrShipmentInUse:               "SHIPMENT_IN_USE",
	domain.ErrInvalidShipmentTransition:   "INVALID_SHIPMENT_TRANSITION",
	domain.ErrOutOfOrderEvent:             "OUT_OF_ORDER_EVENT",
	domain.ErrShipmentStatusConflict:      "SHIPMENT_STATUS_CONFLICT",
	domain.ErrInvoiceStatusConflict:       "INVOICE_STATUS_CONFLICT",
	domain.ErrDuplicatePaymentTransaction: "DUPLICATE_PAYMENT_TRANSACTION",
	domain.ErrIdempotencyKeyAlreadyExists: "IDEMPOTENCY_KEY_IN_PROGRESS",
	domain.ErrIdempotencyHashMismatch:     "IDEMPOTENCY_KEY_REUSED",

	domain.ErrInvoicePersistFailed: "INVOICE_PERSIST_FAILED",

	errInvalidBody:   "INVALID_BODY",
	errInvalidPathID: "INVALID_PATH_ID",
}

func codeName(code error) string {
	if name, ok := codeNames[code]; ok {
		return name
	}
	return "INTERNAL"
}

// statusForKind сопоставляет вид ошибки HTTP-статусу.
func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindConsistency:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// newErrorBody собирает тело ошибки. Внутренние ошибки не раскрывают причину.
func newErrorBody(err error) (int, errorBody) {
	kind := domain.KindOf(err)
	payload := errorPayload{
		Kind:      kind,
		Code:      codeName(domain.CodeOf(err)),
		Message:   err.Error(),
		Retryable: domain.IsRetryable(err),
	}

	var de *domain.Error
	if errors.As(err, &de) {
		payload.Field = de.Field
		payload.ID = de.ID
	}

	// Несколько замечаний валидации приходят через errors.Join.
	if _, single := err.(*domain.Error); !single {
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			payload.Details = details(joined.Unwrap())
		}
	}

	if kind == domain.KindInternal {
		payload.Code = "INTERNAL"
		payload.Message = "internal error"
		payload.Details = nil
	}
	return statusForKind(kind), errorBody{Error: payload}
}

func details(errs []error) []errorDetail {
	out := make([]errorDetail, 0, len(errs))
	for _, item := range errs {
		detail := errorDetail{Code: codeName(domain.CodeOf(item)), Message: item.Error()}
		var itemErr *domain.Error
		if errors.As(item, &itemErr) {
			detail.Field = itemErr.Field
		}
		out = append(out, detail)
	}
	return out
}
