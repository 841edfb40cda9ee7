package memory

import (
	"context"
)

type journalKey struct{}

// journal копит компенсирующие действия текущей транзакции.
type journal struct {
	undo []func()
}

func (j *journal) rollback() {
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.undo = nil
}

// recordUndo регистрирует откат мутации, если ctx несёт транзакцию.
// Вне транзакции мутация считается сразу зафиксированной.
func recordUndo(ctx context.Context, fn func()) {
	if j, ok := ctx.Value(journalKey{}).(*journal); ok {
		j.undo = append(j.undo, fn)
	}
}

// Transactor сериализует транзакции in-memory хранилища и откатывает
// мутации репозиториев, если fn вернул ошибку.
//
// Очередь одна на всё хранилище: журнал отката восстанавливает прежние значения
// и не должен пересекаться с чужой транзакцией. Счётчики серий документов
// не журналируются и выделяют номера под собственным мьютексом серии.
type Transactor struct {
	sem chan struct{}
}

// NewTransactor создаёт in-memory реализацию domain.Transactor.
func NewTransactor() *Transactor {
	return &Transactor{sem: make(chan struct{}, 1)}
}

// WithinTx выполняет fn в транзакции. Вложенный вызов присоединяется к внешней.
func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(journalKey{}).(*journal); ok {
		return fn(ctx)
	}

	select {
	case t.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-t.sem }()

	j := &journal{}
	defer func() {
		if p := recover(); p != nil {
			j.rollback()
			panic(p)
		}
		if err != nil {
			j.rollback()
		}
	}()

	return fn(context.WithValue(ctx, journalKey{}, j))
}
