package auth

import (
	"context"
	"errors"

	"github.com/kirim-crm/kirim-crm/internal/shared"
)

// Translation of provider errors to user-facing text. This is data, not
// logic: unknown errors fall through to a generic message so raw provider
// strings never reach the UI.
var errorMessages = []struct {
	err error
	msg string
}{
	{shared.ErrInvalidCredentials, "Email atau kata sandi tidak valid"},
	{shared.ErrNotFound, "Akun tidak ditemukan"},
	{shared.ErrEmailTaken, "Email sudah terdaftar, gunakan email lain"},
	{shared.ErrAccountInactive, "Akun Anda dinonaktifkan. Hubungi administrator"},
	{context.DeadlineExceeded, "Koneksi bermasalah. Silakan coba lagi"},
}

// genericErrorMessage is the fallback shown for unrecognised provider errors.
const genericErrorMessage = "Terjadi kesalahan. Silakan coba lagi"

// TranslateError maps a provider error to localized user-facing text.
func TranslateError(err error) string {
	if err == nil {
		return ""
	}
	for _, entry := range errorMessages {
		if errors.Is(err, entry.err) {
			return entry.msg
		}
	}
	return genericErrorMessage
}
