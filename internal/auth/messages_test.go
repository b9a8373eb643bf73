package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kirim-crm/kirim-crm/internal/shared"
)

func TestTranslateError(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{shared.ErrInvalidCredentials, "Email atau kata sandi tidak valid"},
		{shared.ErrNotFound, "Akun tidak ditemukan"},
		{shared.ErrEmailTaken, "Email sudah terdaftar, gunakan email lain"},
		{shared.ErrAccountInactive, "Akun Anda dinonaktifkan. Hubungi administrator"},
		{context.DeadlineExceeded, "Koneksi bermasalah. Silakan coba lagi"},
		{errors.New("pq: column does not exist"), genericErrorMessage},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, TranslateError(tc.err))
	}
}

func TestTranslateErrorUnwrapsChains(t *testing.T) {
	wrapped := fmt.Errorf("sign in: %w", shared.ErrInvalidCredentials)
	assert.Equal(t, "Email atau kata sandi tidak valid", TranslateError(wrapped))
}

func TestTranslateErrorNeverLeaksRawText(t *testing.T) {
	raw := errors.New("dial tcp 10.0.0.7:5432: connect: connection refused")
	got := TranslateError(raw)
	assert.Equal(t, genericErrorMessage, got)
	assert.NotContains(t, got, "tcp")
}
