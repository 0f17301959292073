package handler

import (
	"context"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/hitoshi/staybook/internal/images"
	"github.com/hitoshi/staybook/internal/middleware"
	"github.com/hitoshi/staybook/internal/model"
)

// ImageUploader は画像ハンドラーが必要とするアップロード操作。images.Uploader が満たす。
type ImageUploader interface {
	UploadBase64(ctx context.Context, data string) (*images.Result, error)
	UploadFile(ctx context.Context, name string, r io.Reader) (*images.Result, error)
	UploadFromURL(ctx context.Context, rawURL string) (*images.Result, error)
}

// ImageHandler は画像アップロードのHTTPハンドラー。
type ImageHandler struct {
	uploader ImageUploader
	maxSize  int64
	logger   *slog.Logger
}

// NewImageHandler はImageHandlerを生成する。maxSize は画像1枚あたりの上限バイト数。
func NewImageHandler(uploader ImageUploader, maxSize int64, logger *slog.Logger) *ImageHandler {
	return &ImageHandler{uploader: uploader, maxSize: maxSize, logger: logger}
}

// uploadImageRequest はJSON形式のアップロードリクエスト。image と url のどちらか一方を指定する。
type uploadImageRequest struct {
	Image string `json:"image"`
	URL   string `json:"url"`
}

// imageResponse はアップロード結果のAPIレスポンス。
type imageResponse struct {
	ImageURL  string `json:"image_url"`
	ImagePath string `json:"image_path"`
}

// UploadImage は画像をアップロードする。
// multipart/form-data（フィールド image）、またはJSON（base64の image か url）を受け付ける。
// POST /api/images
func (h *ImageHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	// base64とmultipartのオーバーヘッドを見込んで上限の2倍まで読み込む
	r.Body = http.MaxBytesReader(w, r.Body, h.maxSize*2+1024)

	var (
		result *images.Result
		err    error
	)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.HasPrefix(mediaType, "multipart/") {
		file, header, ferr := r.FormFile("image")
		if ferr != nil {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("image フィールドが必要です"))
			return
		}
		defer file.Close()
		result, err = h.uploader.UploadFile(r.Context(), header.Filename, file)
	} else {
		var req uploadImageRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		switch {
		case req.Image != "" && req.URL != "":
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("image と url はどちらか一方のみ指定してください"))
			return
		case req.Image != "":
			result, err = h.uploader.UploadBase64(r.Context(), req.Image)
		case req.URL != "":
			result, err = h.uploader.UploadFromURL(r.Context(), req.URL)
		default:
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("image または url が必要です"))
			return
		}
	}

	if err != nil {
		handleServiceError(w, h.logger, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, imageResponse{ImageURL: result.ImageURL, ImagePath: result.ImagePath})
}
