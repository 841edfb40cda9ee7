package domain_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/billing/internal/domain"
)

// helper для создания базового заказа: 2 * 50.00 + 18.00 доставки.
func makeOrder() domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:          1,
		OrderNumber: "ORD-1",
		CustomerID:  "customer-1",
		Status:      domain.OrderStatusPending,
		Currency:    "PEN",
		Items: []domain.OrderItem{
			{
				ID:        1,
				VariantID: "variant-1",
				Quantity:  2,
				UnitPrice: decimal.RequireFromString("50.00"),
			},
		},
		ShippingAddress: domain.Address{Line1: "Av. Arequipa 100", City: "Lima", Country: "PE"},
		ShippingCost:    decimal.RequireFromString("18.00"),
		Total:           decimal.RequireFromString("118.00"),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestOrderValidateInvariants_Ok(t *testing.T) {
	order := makeOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestOrderValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(o *domain.Order)
	}{
		{
			name: "no customer",
			mut: func(o *domain.Order) {
				o.CustomerID = ""
			},
		},
		{
			name: "no address",
			mut: func(o *domain.Order) {
				o.ShippingAddress = domain.Address{}
			},
		},
		{
			name: "no items",
			mut: func(o *domain.Order) {
				o.Items = nil
			},
		},
		{
			name: "qty invalid",
			mut: func(o *domain.Order) {
				o.Items[0].Quantity = 0
			},
		},
		{
			name: "price invalid",
			mut: func(o *domain.Order) {
				o.Items[0].UnitPrice = decimal.NewFromInt(-5)
			},
		},
		{
			name: "negative shipping",
			mut: func(o *domain.Order) {
				o.ShippingCost = decimal.NewFromInt(-1)
			},
		},
		{
			name: "total mismatch",
			mut: func(o *domain.Order) {
				o.Total = decimal.RequireFromString("117.99")
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := makeOrder()
			order.Items = append([]domain.OrderItem(nil), order.Items...)
			tc.mut(&order)

			if len(order.ValidateInvariants()) == 0 {
				t.Fatalf("expected validation errors for case %s", tc.name)
			}
		})
	}
}

func TestOrderStatusGraph(t *testing.T) {
	legal := map[domain.OrderStatus][]domain.OrderStatus{
		domain.OrderStatusPending:      {domain.OrderStatusAwaitPayment, domain.OrderStatusCancelled},
		domain.OrderStatusAwaitPayment: {domain.OrderStatusPaid, domain.OrderStatusCancelled},
		domain.OrderStatusPaid:         {domain.OrderStatusProcessing, domain.OrderStatusRefunded},
		domain.OrderStatusProcessing:   {domain.OrderStatusShipped, domain.OrderStatusCancelled},
		domain.OrderStatusShipped:      {domain.OrderStatusDelivered, domain.OrderStatusCancelled},
		domain.OrderStatusDelivered:    {domain.OrderStatusRefunded},
		domain.OrderStatusCancelled:    nil,
		domain.OrderStatusRefunded:     nil,
	}

	for from, targets := range legal {
		allowed := map[domain.OrderStatus]bool{}
		for _, to := range targets {
			allowed[to] = true
		}
		for to := range legal {
			if got := from.CanTransitionTo(to); got != allowed[to] {
				t.Errorf("%s -> %s: got %v, want %v", from, to, got, allowed[to])
			}
		}
		if len(from.Successors()) != len(targets) {
			t.Errorf("%s successors = %v, want %v", from, from.Successors(), targets)
		}
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	for _, s := range []domain.OrderStatus{domain.OrderStatusCancelled, domain.OrderStatusRefunded} {
		if !s.IsTerminal() {
			t.Fatalf("%s must be terminal", s)
		}
		if len(s.Successors()) != 0 {
			t.Fatalf("%s must have no successors", s)
		}
	}
	if domain.OrderStatus("LOST").Valid() {
		t.Fatal("unknown status must be invalid")
	}
}

func TestOrderStatusCancelTarget(t *testing.T) {
	cases := []struct {
		from domain.OrderStatus
		want domain.OrderStatus
		ok   bool
	}{
		{domain.OrderStatusPending, domain.OrderStatusCancelled, true},
		{domain.OrderStatusAwaitPayment, domain.OrderStatusCancelled, true},
		{domain.OrderStatusPaid, domain.OrderStatusRefunded, true},
		{domain.OrderStatusProcessing, domain.OrderStatusCancelled, true},
		{domain.OrderStatusShipped, domain.OrderStatusCancelled, true},
		{domain.OrderStatusDelivered, domain.OrderStatusRefunded, true},
		{domain.OrderStatusCancelled, "", false},
		{domain.OrderStatusRefunded, "", false},
	}

	for _, tc := range cases {
		got, ok := tc.from.CancelTarget()
		if got != tc.want || ok != tc.ok {
			t.Errorf("CancelTarget(%s) = %s,%v want %s,%v", tc.from, got, ok, tc.want, tc.ok)
		}
	}
}

func TestOrderStatusInvoiceable(t *testing.T) {
	want := map[domain.OrderStatus]bool{
		domain.OrderStatusPending:      false,
		domain.OrderStatusAwaitPayment: false,
		domain.OrderStatusPaid:         true,
		domain.OrderStatusProcessing:   true,
		domain.OrderStatusShipped:      true,
		domain.OrderStatusDelivered:    true,
		domain.OrderStatusCancelled:    false,
		domain.OrderStatusRefunded:     false,
	}
	for s, w := range want {
		if s.IsInvoiceable() != w {
			t.Errorf("%s invoiceable = %v, want %v", s, !w, w)
		}
	}
}
