package httpadapter

import (
	"errors"
	"net/http"

	"github.com/stars1210JasonHe/Meinrag/internal/core/domain"
)

// Documents owned by other users are reported as missing rather than
// forbidden so IDs cannot be probed.
var errDocumentNotOwned = errors.New("document not found")

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrConflict):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
