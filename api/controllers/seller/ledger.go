package seller

import (
	"net/http"
	"slices"
	"strings"

	"github.com/angelmondragon/bazaar-backend/api/responses"
	"github.com/angelmondragon/bazaar-backend/api/validators"
	"github.com/angelmondragon/bazaar-backend/internal/ledger"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

// LedgerEntries lists the store's ledger rows within ?from=&to=, optionally
// narrowed to one entry ?type=.
func LedgerEntries(svc ledger.Service, stores StoreResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || stores == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}
		store, _, err := ownedStore(r, stores)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		period, err := parsePeriod(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var entryType enums.LedgerEntryType
		if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
			entryType, err = enums.ParseLedgerEntryType(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid type"))
				return
			}
		}

		rows, err := svc.GetLedgerEntries(r.Context(), store.ID, period)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if entryType != "" {
			rows = slices.DeleteFunc(rows, func(row models.SellerLedgerEntry) bool {
				return row.EntryType != entryType
			})
		}
		responses.WriteSuccess(w, map[string]any{"entries": ledger.NewEntryDTOs(rows)})
	}
}

// LedgerSummary returns the period statement for the store.
func LedgerSummary(svc ledger.Service, stores StoreResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || stores == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}
		store, _, err := ownedStore(r, stores)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		period, err := parsePeriod(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		summary, err := svc.Summary(r.Context(), store.ID, period)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, ledger.NewSummaryDTO(summary))
	}
}

func parsePeriod(r *http.Request) (ledger.Period, error) {
	from, err := validators.ParseQueryTime(r, "from")
	if err != nil {
		return ledger.Period{}, err
	}
	to, err := validators.ParseQueryTime(r, "to")
	if err != nil {
		return ledger.Period{}, err
	}
	return ledger.Period{From: from, To: to}, nil
}
