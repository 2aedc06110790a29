package rest

import (
	"errors"

	"github.com/gin-gonic/gin"
)

var (
	errInvalidRegistryRef = errors.New("registry_ref is not a valid contract address")
	errInvalidAddress     = errors.New("address is not a valid account address")
	errInvalidAmount      = errors.New("amount must be a base-10 unsigned integer string")
	errInvalidListingID   = errors.New("listing id must be a positive integer")
	errConflictingFilters = errors.New("seller and unsold filters are mutually exclusive")
	errInvalidContentSize = errors.New("content must be between 1 byte and 16 MiB")
)

// RegisterRoutes wires the marketplace endpoints onto the router. Mutating
// fee and content endpoints sit behind operator auth; listing creation and
// purchase are open, matching the self-serve marketplace model.
func RegisterRoutes(router *gin.Engine, handler *Handler, auth gin.HandlerFunc) {
	router.GET("/healthz", handler.HealthCheck)

	v1 := router.Group("/v1")
	{
		v1.POST("/listings", handler.CreateListing)
		v1.POST("/listings/:id/purchase", handler.PurchaseListing)
		v1.GET("/listings", handler.ListListings)
		v1.GET("/listings/:id", handler.GetListing)
		v1.GET("/listings/:id/events", handler.GetListingEvents)

		v1.GET("/fee", handler.GetFee)
		v1.GET("/accounts/:address/balance", handler.GetBalance)

		protected := v1.Group("")
		protected.Use(auth)
		{
			protected.PUT("/fee", handler.UpdateFee)
			protected.POST("/content", handler.UploadContent)
		}
	}
}
