package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/staybook/internal/images"
	"github.com/hitoshi/staybook/internal/model"
)

func TestHandleServiceError_Mapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		notFound   *model.APIError
		wantStatus int
		wantCode   string
	}{
		{
			name:       "認証情報の拒否は401",
			err:        fmt.Errorf("login: %w", &model.CredentialError{Code: model.CredentialCodeEmailExists}),
			wantStatus: http.StatusUnauthorized,
			wantCode:   model.ErrCodeCredential,
		},
		{
			name:       "入力検証エラーは400",
			err:        model.NewValidationError("title"),
			wantStatus: http.StatusBadRequest,
			wantCode:   model.ErrCodeValidation,
		},
		{
			name:       "無効なURLは400",
			err:        model.NewInvalidURLError("private address"),
			wantStatus: http.StatusBadRequest,
			wantCode:   model.ErrCodeInvalidURL,
		},
		{
			name:       "画像サイズ超過は413",
			err:        model.NewImageTooLargeError(10),
			wantStatus: http.StatusRequestEntityTooLarge,
			wantCode:   model.ErrCodeImageTooLarge,
		},
		{
			name:       "未認証は401",
			err:        fmt.Errorf("add place: %w", model.ErrNotAuthenticated),
			wantStatus: http.StatusUnauthorized,
			wantCode:   model.ErrCodeUnauthorized,
		},
		{
			name:       "リソース固有の未検出エラー",
			err:        fmt.Errorf("offered-places p1: %w", model.ErrNotFound),
			notFound:   model.NewPlaceNotFoundError("p1"),
			wantStatus: http.StatusNotFound,
			wantCode:   model.ErrCodePlaceNotFound,
		},
		{
			name:       "汎用の未検出エラー",
			err:        model.ErrNotFound,
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
		{
			name:       "通信失敗は502",
			err:        &model.TransportError{Op: "bookings.list", StatusCode: 500},
			wantStatus: http.StatusBadGateway,
			wantCode:   model.ErrCodeRemoteFailed,
		},
		{
			name:       "アップロード無効は503",
			err:        images.ErrUploadDisabled,
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "UPLOAD_DISABLED",
		},
		{
			name:       "未知のエラーは500",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handleServiceError(w, discardLogger(), tt.err, tt.notFound)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := parseAPIErrorResponse(t, w)["code"]; got != tt.wantCode {
				t.Errorf("code = %q, want %q", got, tt.wantCode)
			}
		})
	}
}

func TestHandleServiceError_CredentialMessage(t *testing.T) {
	w := httptest.NewRecorder()
	handleServiceError(w, discardLogger(), &model.CredentialError{Code: model.CredentialCodeInvalidPassword}, nil)

	if got := parseAPIErrorResponse(t, w)["message"]; got != "User or password incorrect!" {
		t.Errorf("message = %q", got)
	}
}
