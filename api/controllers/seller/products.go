package seller

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bazaar-backend/api/responses"
	"github.com/angelmondragon/bazaar-backend/api/validators"
	product "github.com/angelmondragon/bazaar-backend/internal/products"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

type createListingRequest struct {
	Title            string                  `json:"title" validate:"required,max=200"`
	Price            decimal.Decimal         `json:"price" validate:"money"`
	StockQuantity    int                     `json:"stock_quantity" validate:"min=0"`
	RequiresShipping bool                    `json:"requires_shipping"`
	ShippingOptions  []shippingOptionRequest `json:"shipping_options" validate:"omitempty,max=10,dive"`
}

type shippingOptionRequest struct {
	Name string          `json:"name" validate:"required,max=100"`
	Cost decimal.Decimal `json:"cost" validate:"money"`
}

func (r *createListingRequest) Sanitize() {
	r.Title = validators.SanitizeString(r.Title, 200)
	for i := range r.ShippingOptions {
		r.ShippingOptions[i].Name = validators.SanitizeString(r.ShippingOptions[i].Name, 100)
	}
}

// CreateListing creates a product for the seller's store and accrues its listing fee.
func CreateListing(svc product.Service, stores StoreResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || stores == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}
		store, userID, err := ownedStore(r, stores)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createListingRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input := product.CreateListingInput{
			Title:            req.Title,
			Price:            req.Price,
			StockQuantity:    req.StockQuantity,
			RequiresShipping: req.RequiresShipping,
		}
		for _, opt := range req.ShippingOptions {
			input.ShippingOptions = append(input.ShippingOptions, product.ShippingOptionInput{Name: opt.Name, Cost: opt.Cost})
		}

		listing, err := svc.CreateListing(r.Context(), userID, store.ID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, listing)
	}
}

// ListProducts returns a cursor page of the seller's products.
func ListProducts(svc product.Service, stores StoreResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || stores == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}
		store, _, err := ownedStore(r, stores)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListProducts(r.Context(), store.ID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}
