package app

import (
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/billing/internal/domain"
	"github.com/vladislavdragonenkov/billing/internal/service/lifecycle"
)

// newTestOrderRequest создаёт заказ на 100.00 + 18.00 доставки.
func newTestOrderRequest(number string) lifecycle.CreateOrderRequest {
	return lifecycle.CreateOrderRequest{
		OrderNumber: number,
		CustomerID:  "test-customer-1",
		Currency:    "PEN",
		Items: []lifecycle.ItemRequest{
			{VariantID: "SKU-TEST", Quantity: 2, UnitPrice: decimal.RequireFromString("50.00")},
		},
		ShippingAddress: domain.Address{Line1: "Av. Arequipa 100", City: "Lima", Country: "PE"},
		ShippingCost:    decimal.RequireFromString("18.00"),
		Actor:           "test",
	}
}

// findFreePort находит свободный порт для тестов
func findFreePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port
}

// waitForHTTP ждёт, пока url начнёт отвечать.
func waitForHTTP(t *testing.T, url string) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("%s did not respond in time", url)
}

func localAddr(port int) string {
	return fmt.Sprintf("127.0.0.1:%d", port)
}
