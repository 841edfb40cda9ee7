package domain

import "time"

// TransitionRecord - запись аудита о смене статуса заказа.
type TransitionRecord struct {
	ID         int64
	OrderID    int64
	From       OrderStatus
	To         OrderStatus
	Actor      string
	Notes      string
	OccurredAt time.Time
}
