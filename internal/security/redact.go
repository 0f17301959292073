package security

import (
	"errors"
	"fmt"
	"net/url"
)

// StripRequestURL は *url.Error からリクエストURLを取り除いたエラーを返す。
// URLのクエリには認証トークンやAPIキーが載るため、ログやエラー文言に残さない。
func StripRequestURL(err error) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}
	return fmt.Errorf("%s request failed: %w", urlErr.Op, urlErr.Err)
}
