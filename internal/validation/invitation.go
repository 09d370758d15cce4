// Package validation содержит функции валидации входных данных.
package validation

import "strings"

const (
	minInvitationCodeLen = 4
	maxInvitationCodeLen = 32
)

// NormalizeInvitationCode приводит код приглашения к каноническому виду: без пробелов по краям, в верхнем регистре.
func NormalizeInvitationCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsValidInvitationCode проверяет формат нормализованного кода: латинские буквы, цифры и дефис.
func IsValidInvitationCode(code string) bool {
	if len(code) < minInvitationCodeLen || len(code) > maxInvitationCodeLen {
		return false
	}

	for i := 0; i < len(code); i++ {
		ch := code[i]
		switch {
		case ch >= 'A' && ch <= 'Z':
		case ch >= '0' && ch <= '9':
		case ch == '-':
		default:
			return false
		}
	}

	return true
}
