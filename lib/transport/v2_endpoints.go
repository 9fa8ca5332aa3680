package transport

import (
	"github.com/labstack/echo/v4"

	"github.com/worldpeaceenginelabs/cloudatlas.go/controllers"
	"github.com/worldpeaceenginelabs/cloudatlas.go/lib/service"
)

func RegisterV2Endpoints(svc *service.Service, e *echo.Echo, strictRateLimitMiddleware echo.MiddlewareFunc, logMw echo.MiddlewareFunc) {
	requestCtrl := controllers.NewRequestController(svc)
	offerCtrl := controllers.NewOfferController(svc)
	sessionCtrl := controllers.NewSessionController(svc)
	listingCtrl := controllers.NewListingController(svc)
	infoCtrl := controllers.NewInfoController(svc)

	// session starts publish to the relays, keep them strictly rate limited
	e.POST("/v2/requests", requestCtrl.CreateRequest, strictRateLimitMiddleware, logMw)
	e.DELETE("/v2/requests/current", requestCtrl.CancelRequest, logMw)

	e.POST("/v2/offers", offerCtrl.CreateOffer, strictRateLimitMiddleware, logMw)
	e.POST("/v2/offers/accept", offerCtrl.AcceptRequest, logMw)
	e.POST("/v2/offers/decline", offerCtrl.DeclineRequest, logMw)
	e.DELETE("/v2/offers/current", offerCtrl.StopOffer, logMw)

	e.GET("/v2/session", sessionCtrl.GetSession)
	e.GET("/v2/session/stream", sessionCtrl.StreamNotifications)

	e.POST("/v2/listings", listingCtrl.CreateListing, strictRateLimitMiddleware, logMw)
	e.DELETE("/v2/listings/:id", listingCtrl.DeleteListing, logMw)
	e.GET("/v2/listings", listingCtrl.GetListings)
	e.POST("/v2/listings/refresh", listingCtrl.RefreshListings)

	e.GET("/v2/info", infoCtrl.GetInfo)
	e.GET("/v2/info/qr", infoCtrl.GetInfoQR)
}
