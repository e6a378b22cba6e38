package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/beadshop-backend/api/responses"
	"github.com/angelmondragon/beadshop-backend/internal/webhooks"
	"github.com/angelmondragon/beadshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/beadshop-backend/pkg/errors"
	"github.com/angelmondragon/beadshop-backend/pkg/logger"
)

const maxPayloadBytes = 256 << 10

type reconciler interface {
	Reconcile(ctx context.Context, provider enums.PaymentProvider, payload []byte, headers http.Header) (webhooks.Result, error)
}

// Payment receives a gateway notification. The raw body is handed over
// untouched because signatures are computed over the exact bytes.
func Payment(svc reconciler, provider enums.PaymentProvider, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook reconciler unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		result, err := svc.Reconcile(ctx, provider, payload, r.Header)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"result": string(result)})
	}
}
