package inventory

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/billing/internal/domain"
)

// Gate - проверка складского резерва перед переводом заказа в сборку.
// Складской учёт живёт в другом сервисе, поэтому проверка всегда проходит.
type Gate struct {
	logger *log.Entry
}

// NewGate создаёт Gate.
func NewGate(logger *log.Entry) *Gate {
	if logger == nil {
		logger = log.WithField("component", "inventory-gate")
	}
	return &Gate{logger: logger}
}

// CheckHold подтверждает резерв по позициям заказа.
func (g *Gate) CheckHold(_ context.Context, order domain.Order) error {
	g.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"items":    len(order.Items),
	}).Debug("inventory hold assumed")
	return nil
}

// MockGate - конфигурируемая заглушка InventoryGate для тестов.
type MockGate struct {
	HoldErr error
	Calls   int
}

// CheckHold возвращает заранее настроенную ошибку и считает вызовы.
func (m *MockGate) CheckHold(_ context.Context, _ domain.Order) error {
	m.Calls++
	return m.HoldErr
}

var (
	_ domain.InventoryGate = (*Gate)(nil)
	_ domain.InventoryGate = (*MockGate)(nil)
)
