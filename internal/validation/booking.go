// Package validation содержит функции валидации входных данных заказа.
package validation

import (
	"strings"
	"unicode"
)

// IsValidEmail выполняет минимальную структурную проверку адреса почты:
// непустая локальная часть, одна @ и домен с точкой.
func IsValidEmail(email string) bool {
	at := strings.Index(email, "@")
	if at <= 0 || at != strings.LastIndex(email, "@") {
		return false
	}

	domain := email[at+1:]
	if len(domain) < 3 {
		return false
	}

	dot := strings.Index(domain, ".")
	return dot > 0 && dot < len(domain)-1
}

// IsValidPhone проверяет, что строка похожа на телефонный номер:
// не менее шести цифр, из прочих символов допустимы +, -, скобки и пробелы.
func IsValidPhone(phone string) bool {
	digits := 0
	for _, ch := range phone {
		switch {
		case unicode.IsDigit(ch):
			digits++
		case ch == '+' || ch == '-' || ch == '(' || ch == ')' || ch == ' ':
		default:
			return false
		}
	}
	return digits >= 6
}

// IsValidContactName проверяет, что имя контактного лица не пустое.
func IsValidContactName(name string) bool {
	return strings.TrimSpace(name) != ""
}
