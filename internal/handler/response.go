// Package handler はUI向けHTTP APIのハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/staybook/internal/images"
	"github.com/hitoshi/staybook/internal/middleware"
	"github.com/hitoshi/staybook/internal/model"
)

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON はリクエストボディをデコードする。失敗時は400を書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, newInvalidRequestError())
		return false
	}
	return true
}

func newInvalidRequestError() *model.APIError {
	return &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
// notFound はキャッシュ上にIDが無い場合に返すエラー。nilの場合は汎用の404になる。
func handleServiceError(w http.ResponseWriter, logger *slog.Logger, err error, notFound *model.APIError) {
	var credErr *model.CredentialError
	if errors.As(err, &credErr) {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewCredentialAPIError(credErr))
		return
	}

	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	switch {
	case errors.Is(err, model.ErrNotAuthenticated):
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
	case errors.Is(err, model.ErrNotFound):
		if notFound == nil {
			notFound = &model.APIError{
				Code:     "NOT_FOUND",
				Message:  "指定されたリソースが見つかりません。",
				Category: "resource",
				Action:   "一覧を再読み込みしてください。",
			}
		}
		middleware.WriteErrorResponse(w, http.StatusNotFound, notFound)
	case errors.Is(err, model.ErrTransport):
		logger.Warn("remote call failed", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusBadGateway, model.NewRemoteFailedError())
	case errors.Is(err, images.ErrUploadDisabled):
		middleware.WriteErrorResponse(w, http.StatusServiceUnavailable, &model.APIError{
			Code:     "UPLOAD_DISABLED",
			Message:  "画像アップロードは利用できません。",
			Category: "system",
			Action:   "画像URLを直接指定してください。",
		})
	default:
		logger.Error("internal server error", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
	}
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthorized, model.ErrCodeCredential:
		return http.StatusUnauthorized
	case model.ErrCodeValidation, model.ErrCodeInvalidURL:
		return http.StatusBadRequest
	case model.ErrCodeImageTooLarge:
		return http.StatusRequestEntityTooLarge
	case model.ErrCodePlaceNotFound, model.ErrCodeBookingNotFound:
		return http.StatusNotFound
	case model.ErrCodeRemoteFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
