package outbox

import (
	"fmt"
	"net/http"

	"github.com/venuehq/venue-sdk/pkg/serrors"
)

var ErrInvalidConfig = serrors.New(http.StatusInternalServerError, "OUTBOX_INVALID_CONFIG", "invalid outbox configuration", nil)

func invalidConfig(msg string, args ...any) error {
	return fmt.Errorf("%w: "+msg, append([]any{ErrInvalidConfig}, args...)...)
}
