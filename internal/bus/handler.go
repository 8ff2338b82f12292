package bus

import (
	"context"
	"errors"
)

// Handler processa uma mensagem. O retorno decide o ack:
//   - nil: confirma
//   - ErrDeferred: o handler fica responsável pelo ack (ex.: buffer em lote)
//   - Discard(err): mensagem inválida, vai para o DLQ e é confirmada
//   - outro erro: fica pendente e volta pelo reclaim
type Handler interface {
	Handle(ctx context.Context, msg Message) error
}

type HandlerFunc func(ctx context.Context, msg Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg Message) error { return f(ctx, msg) }

var ErrDeferred = errors.New("ack deferred")

type discardError struct{ err error }

func (d discardError) Error() string { return "discard: " + d.err.Error() }
func (d discardError) Unwrap() error { return d.err }

// Discard marca um erro como definitivo (mensagem malformada)
func Discard(err error) error { return discardError{err: err} }

func IsDiscard(err error) bool {
	var d discardError
	return errors.As(err, &d)
}
