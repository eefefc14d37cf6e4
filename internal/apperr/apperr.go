// Package apperr содержит виды ошибок, которые сервис возвращает на границе операции.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound возвращается, если курс, событие, покупка или регистрация не найдены.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState возвращается при попытке перехода из состояния, которое его не допускает.
	ErrInvalidState = errors.New("invalid state")
	// ErrConflict возвращается при дубликате покупки или регистрации и при заполненном событии.
	ErrConflict = errors.New("conflict")
	// ErrValidation возвращается при некорректных входных данных.
	ErrValidation = errors.New("validation error")
	// ErrForbidden возвращается, если у пользователя нет права на операцию.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthorized возвращается при неверных учётных данных.
	ErrUnauthorized = errors.New("unauthorized")
)

// Message возвращает человекочитаемую причину ошибки без префикса вида.
func Message(err error) string {
	msg := err.Error()
	for _, kind := range []error{ErrNotFound, ErrInvalidState, ErrConflict, ErrValidation, ErrForbidden, ErrUnauthorized} {
		if errors.Is(err, kind) {
			msg = strings.TrimPrefix(msg, kind.Error()+": ")
			break
		}
	}
	return msg
}

// StepError описывает сбой хранилища посреди многошаговой операции.
// Шаги выполняются в одной транзакции, поэтому Completed откатываются вместе с ней
// и операцию можно безопасно повторить целиком.
type StepError struct {
	Op        string
	Step      string
	Completed []string
	Err       error
}

func (e *StepError) Error() string {
	completed := "none"
	if len(e.Completed) > 0 {
		completed = strings.Join(e.Completed, ",")
	}
	return fmt.Sprintf("%s: step %q failed (rolled back after: %s): %v", e.Op, e.Step, completed, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
