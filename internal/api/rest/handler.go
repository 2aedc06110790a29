package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nfturvy/market-ledger/internal/contentstore"
	"github.com/nfturvy/market-ledger/internal/domain"
	"github.com/nfturvy/market-ledger/internal/logger"
	"github.com/nfturvy/market-ledger/internal/store/schema"
)

// maxContentSize caps content uploads at 16 MiB
const maxContentSize = 16 << 20

// Ledger is the marketplace surface the handlers drive
type Ledger interface {
	CreateListing(ctx context.Context, registryRef domain.RegistryRef, itemNumber, seller string, price, feePaid domain.Amount) (uint64, error)
	ExecuteSale(ctx context.Context, listingID uint64, buyer string, payment domain.Amount) error
	CurrentFee(ctx context.Context) (domain.Amount, error)
	SetFee(ctx context.Context, amount domain.Amount) error
	GetListing(ctx context.Context, listingID uint64) (*schema.Listing, error)
	AllListings(ctx context.Context) ([]*schema.Listing, error)
	UnsoldListings(ctx context.Context) ([]*schema.Listing, error)
	ListingsBySeller(ctx context.Context, seller string) ([]*schema.Listing, error)
	ListingEvents(ctx context.Context, listingID uint64) ([]*schema.LedgerEvent, error)
	AccountBalance(ctx context.Context, address string) (domain.Amount, error)
	MetadataURI(ctx context.Context, registryRef domain.RegistryRef, itemNumber string) (string, error)
}

// Handler serves the marketplace REST endpoints
type Handler struct {
	ledger  Ledger
	content contentstore.Store
}

// NewHandler creates a REST handler. The content store may be nil when no
// content endpoint is configured.
func NewHandler(ledger Ledger, content contentstore.Store) *Handler {
	return &Handler{
		ledger:  ledger,
		content: content,
	}
}

// CreateListing handles POST /v1/listings
func (h *Handler) CreateListing(c *gin.Context) {
	var req CreateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithBadRequest(c, err)
		return
	}

	registryRef := domain.RegistryRef(req.RegistryRef)
	if !registryRef.Valid() {
		abortWithBadRequest(c, errInvalidRegistryRef)
		return
	}
	if !domain.ValidAddress(req.Seller) {
		abortWithBadRequest(c, errInvalidAddress)
		return
	}
	price := domain.Amount(req.Price)
	feePaid := domain.Amount(req.FeePaid)
	if !price.Valid() || !feePaid.Valid() {
		abortWithBadRequest(c, errInvalidAmount)
		return
	}

	listingID, err := h.ledger.CreateListing(c.Request.Context(), registryRef, req.ItemNumber, req.Seller, price, feePaid)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, CreateListingResponse{ListingID: listingID})
}

// PurchaseListing handles POST /v1/listings/:id/purchase
func (h *Handler) PurchaseListing(c *gin.Context) {
	listingID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		abortWithBadRequest(c, errInvalidListingID)
		return
	}

	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithBadRequest(c, err)
		return
	}
	if !domain.ValidAddress(req.Buyer) {
		abortWithBadRequest(c, errInvalidAddress)
		return
	}
	payment := domain.Amount(req.Payment)
	if !payment.Valid() {
		abortWithBadRequest(c, errInvalidAmount)
		return
	}

	if err := h.ledger.ExecuteSale(c.Request.Context(), listingID, req.Buyer, payment); err != nil {
		abortWithError(c, err)
		return
	}

	listing, err := h.ledger.GetListing(c.Request.Context(), listingID)
	if err != nil || listing == nil {
		// The sale already settled; reconstructing the view is best effort
		c.JSON(http.StatusOK, gin.H{"listing_id": listingID, "sold": true})
		return
	}

	c.JSON(http.StatusOK, listingView(listing))
}

// ListListings handles GET /v1/listings. Without query parameters it returns
// every listing; ?unsold=true narrows to escrow-held listings and ?seller=
// narrows to one seller's listings. The two filters are mutually exclusive.
func (h *Handler) ListListings(c *gin.Context) {
	ctx := c.Request.Context()

	seller := c.Query("seller")
	unsold := c.Query("unsold") == "true"

	if seller != "" && unsold {
		abortWithBadRequest(c, errConflictingFilters)
		return
	}

	var (
		listings []*schema.Listing
		err      error
	)
	switch {
	case seller != "":
		if !domain.ValidAddress(seller) {
			abortWithBadRequest(c, errInvalidAddress)
			return
		}
		listings, err = h.ledger.ListingsBySeller(ctx, seller)
	case unsold:
		listings, err = h.ledger.UnsoldListings(ctx)
	default:
		listings, err = h.ledger.AllListings(ctx)
	}
	if err != nil {
		abortWithError(c, err)
		return
	}

	views := make([]ListingView, 0, len(listings))
	expandMetadata := c.Query("expand") == "metadata_uri"
	for _, listing := range listings {
		view := listingView(listing)
		if expandMetadata {
			view.MetadataURI = h.resolveMetadataURI(ctx, listing)
		}
		views = append(views, view)
	}

	c.JSON(http.StatusOK, ListingsResponse{Listings: views})
}

// GetListing handles GET /v1/listings/:id
func (h *Handler) GetListing(c *gin.Context) {
	listingID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		abortWithBadRequest(c, errInvalidListingID)
		return
	}

	listing, err := h.ledger.GetListing(c.Request.Context(), listingID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if listing == nil {
		abortWithError(c, domain.ErrUnknownListing)
		return
	}

	view := listingView(listing)
	if c.Query("expand") == "metadata_uri" {
		view.MetadataURI = h.resolveMetadataURI(c.Request.Context(), listing)
	}

	c.JSON(http.StatusOK, view)
}

// GetListingEvents handles GET /v1/listings/:id/events
func (h *Handler) GetListingEvents(c *gin.Context) {
	listingID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		abortWithBadRequest(c, errInvalidListingID)
		return
	}

	listing, err := h.ledger.GetListing(c.Request.Context(), listingID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if listing == nil {
		abortWithError(c, domain.ErrUnknownListing)
		return
	}

	events, err := h.ledger.ListingEvents(c.Request.Context(), listingID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	views := make([]LedgerEventView, 0, len(events))
	for _, event := range events {
		views = append(views, LedgerEventView{
			ID:        event.ID,
			EventType: event.EventType,
			Payload:   json.RawMessage(event.Payload),
			CreatedAt: event.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, LedgerEventsResponse{Events: views})
}

// GetFee handles GET /v1/fee
func (h *Handler) GetFee(c *gin.Context) {
	fee, err := h.ledger.CurrentFee(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, FeeResponse{Fee: fee.String()})
}

// UpdateFee handles PUT /v1/fee (operator only)
func (h *Handler) UpdateFee(c *gin.Context) {
	var req UpdateFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithBadRequest(c, err)
		return
	}

	fee := domain.Amount(req.Fee)
	if !fee.Valid() {
		abortWithBadRequest(c, errInvalidAmount)
		return
	}

	if err := h.ledger.SetFee(c.Request.Context(), fee); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, FeeResponse{Fee: fee.Canonical().String()})
}

// GetBalance handles GET /v1/accounts/:address/balance
func (h *Handler) GetBalance(c *gin.Context) {
	address := c.Param("address")
	if !domain.ValidAddress(address) {
		abortWithBadRequest(c, errInvalidAddress)
		return
	}

	balance, err := h.ledger.AccountBalance(c.Request.Context(), address)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, BalanceResponse{
		Address: domain.NormalizeAddress(address),
		Balance: balance.String(),
	})
}

// UploadContent handles POST /v1/content (operator only)
func (h *Handler) UploadContent(c *gin.Context) {
	if h.content == nil {
		c.AbortWithStatusJSON(http.StatusNotImplemented, ErrorResponse{
			Error: ErrorDetail{
				Code:    "not_configured",
				Message: "content store is not configured",
			},
		})
		return
	}

	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxContentSize+1))
	if err != nil {
		abortWithBadRequest(c, err)
		return
	}
	if len(data) == 0 || len(data) > maxContentSize {
		abortWithBadRequest(c, errInvalidContentSize)
		return
	}

	uri, err := h.content.Put(c.Request.Context(), data)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, ContentResponse{URI: uri})
}

// HealthCheck handles GET /healthz
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// resolveMetadataURI looks up an item's metadata URI, tolerating registry
// failures: the listing view is still useful without it.
func (h *Handler) resolveMetadataURI(ctx context.Context, listing *schema.Listing) string {
	uri, err := h.ledger.MetadataURI(ctx, listing.RegistryRef, listing.ItemNumber)
	if err != nil {
		logger.WarnCtx(ctx, "Failed to resolve metadata URI",
			zap.Uint64("listing_id", listing.ID),
			zap.Error(err),
		)
		return ""
	}
	return uri
}
