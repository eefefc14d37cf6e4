// Package validation содержит проверки входных данных и настройку валидатора запросов.
package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator"
)

var durationRe = regexp.MustCompile(`^(\d+)h(?: (\d+)min)?$`)

// IsYapePhone проверяет номер телефона Yape/Plin: ровно 9 цифр.
func IsYapePhone(s string) bool {
	return isDigits(s, 9)
}

// IsOperationCode проверяет код операции Yape/Plin: ровно 6 цифр.
func IsOperationCode(s string) bool {
	return isDigits(s, 6)
}

// IsPeruPhone проверяет телефон пользователя в формате +51XXXXXXXXX.
func IsPeruPhone(s string) bool {
	rest, ok := strings.CutPrefix(s, "+51")
	return ok && isDigits(rest, 9)
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// DurationMinutes разбирает длительность курса вида "10h" или "2h 30min" и возвращает её в минутах.
func DurationMinutes(s string) (int, error) {
	m := durationRe.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("duration %q must look like 10h or 2h 30min", s)
	}

	hours, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("parse hours: %w", err)
	}

	minutes := 0
	if m[2] != "" {
		minutes, err = strconv.Atoi(m[2])
		if err != nil {
			return 0, fmt.Errorf("parse minutes: %w", err)
		}
	}

	return hours*60 + minutes, nil
}

// New создаёт валидатор с дополнительными тегами yape_phone, op_code, pe_phone и course_duration.
func New() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	custom := map[string]func(string) bool{
		"yape_phone": IsYapePhone,
		"op_code":    IsOperationCode,
		"pe_phone":   IsPeruPhone,
		"course_duration": func(s string) bool {
			_, err := DurationMinutes(s)
			return err == nil
		},
	}
	for tag, check := range custom {
		// теги и функции заданы статически, ошибка регистрации невозможна
		_ = v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return check(fl.Field().String())
		})
	}

	return v
}

// Describe превращает ошибки валидатора в одно человекочитаемое сообщение.
func Describe(errs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(errs))

	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("field %s is required", err.Field()))
		case "email":
			msgs = append(msgs, fmt.Sprintf("field %s must be a valid email", err.Field()))
		case "min":
			msgs = append(msgs, fmt.Sprintf("field %s must be at least %s", err.Field(), err.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("field %s must be at most %s", err.Field(), err.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("field %s must be one of: %s", err.Field(), err.Param()))
		case "yape_phone":
			msgs = append(msgs, fmt.Sprintf("field %s must contain 9 digits", err.Field()))
		case "op_code":
			msgs = append(msgs, fmt.Sprintf("field %s must contain 6 digits", err.Field()))
		case "pe_phone":
			msgs = append(msgs, fmt.Sprintf("field %s must look like +51XXXXXXXXX", err.Field()))
		case "course_duration":
			msgs = append(msgs, fmt.Sprintf("field %s must look like 10h or 2h 30min", err.Field()))
		default:
			msgs = append(msgs, fmt.Sprintf("field %s is not valid", err.Field()))
		}
	}

	return strings.Join(msgs, ", ")
}
