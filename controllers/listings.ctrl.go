package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/worldpeaceenginelabs/cloudatlas.go/geohash"
	"github.com/worldpeaceenginelabs/cloudatlas.go/lib/responses"
	"github.com/worldpeaceenginelabs/cloudatlas.go/lib/service"
)

// ListingController : Classified listing controller struct
type ListingController struct {
	svc *service.Service
}

func NewListingController(svc *service.Service) *ListingController {
	return &ListingController{svc: svc}
}

type CreateListingBody struct {
	Mode        string   `json:"mode" validate:"required,oneof=in-person online both"`
	Category    string   `json:"category" validate:"required"`
	Title       string   `json:"title"`
	Description string   `json:"description" validate:"required"`
	Contact     string   `json:"contact" validate:"required"`
	Lat         *float64 `json:"lat,omitempty"`
	Lon         *float64 `json:"lon,omitempty"`
	EventDate   string   `json:"event_date,omitempty"`
}

// CreateListing godoc
// @Summary      Publish a classified listing
// @Description  Posts a listing with a week-scale expiration; in-person listings are pinned to a coarse geohash cell
// @Accept       json
// @Produce      json
// @Tags         Listings
// @Param        CreateListingBody  body      CreateListingBody  True  "Listing"
// @Success      200                {object}  service.Listing
// @Failure      400                {object}  responses.ErrorResponse
// @Router       /v2/listings [post]
func (controller *ListingController) CreateListing(c echo.Context) error {
	var body CreateListingBody
	if err := c.Bind(&body); err != nil {
		c.Logger().Errorf("Failed to load create listing body: %v", err)
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}
	if err := c.Validate(&body); err != nil {
		c.Logger().Errorf("Invalid create listing body: %v", err)
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}

	l := &service.Listing{
		Mode:        body.Mode,
		Category:    body.Category,
		Title:       body.Title,
		Description: body.Description,
		Contact:     body.Contact,
		EventDate:   body.EventDate,
	}
	if body.Lat != nil && body.Lon != nil {
		l.Location = &geohash.Point{Lat: *body.Lat, Lon: *body.Lon}
	}

	created, err := controller.svc.PublishListing(c.Request().Context(), l)
	if err != nil {
		c.Logger().Errorf("Failed to publish listing: %v", err)
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}
	return c.JSON(http.StatusOK, created)
}

// DeleteListing godoc
// @Summary      Take a listing down
// @Description  Replaces the listing's relay record with one that expires immediately
// @Produce      json
// @Tags         Listings
// @Param        id   path  string  True  "Listing id"
// @Success      204
// @Failure      404  {object}  responses.ErrorResponse
// @Router       /v2/listings/{id} [delete]
func (controller *ListingController) DeleteListing(c echo.Context) error {
	id := c.Param("id")
	if err := controller.svc.TakedownListingByID(c.Request().Context(), id); err != nil {
		if errors.Is(err, service.ErrListingNotFound) {
			return c.JSON(http.StatusNotFound, responses.ListingNotFoundError)
		}
		c.Logger().Errorf("Failed to take down listing %s: %v", id, err)
		return c.JSON(http.StatusInternalServerError, responses.GeneralServerError)
	}
	return c.NoContent(http.StatusNoContent)
}

// GetListings godoc
// @Summary      Browse listings
// @Description  Returns the listings visible around a location, including the vertical's online-only ones
// @Produce      json
// @Tags         Listings
// @Param        lat      query     number   True   "Latitude"
// @Param        lon      query     number   True   "Longitude"
// @Param        refresh  query     boolean  False  "Bypass the cache"
// @Success      200  {object}  []service.Listing
// @Failure      400  {object}  responses.ErrorResponse
// @Failure      503  {object}  responses.ErrorResponse
// @Router       /v2/listings [get]
func (controller *ListingController) GetListings(c echo.Context) error {
	lat, latErr := strconv.ParseFloat(c.QueryParam("lat"), 64)
	lon, lonErr := strconv.ParseFloat(c.QueryParam("lon"), 64)
	if latErr != nil || lonErr != nil {
		return c.JSON(http.StatusBadRequest, responses.LocationRequiredError)
	}
	if refresh, _ := strconv.ParseBool(c.QueryParam("refresh")); refresh {
		controller.svc.Cache.ForceRefresh(controller.svc.Config.Vertical)
	}

	listings, err := controller.svc.FetchListings(c.Request().Context(), geohash.Point{Lat: lat, Lon: lon})
	if err != nil {
		c.Logger().Errorf("Failed to fetch listings: %v", err)
		return c.JSON(http.StatusServiceUnavailable, responses.RelaysUnreachableError)
	}
	if listings == nil {
		listings = []*service.Listing{}
	}
	return c.JSON(http.StatusOK, listings)
}

// RefreshListings godoc
// @Summary      Force a cache refresh
// @Description  Invalidates the listing cache for the configured vertical
// @Produce      json
// @Tags         Listings
// @Success      204
// @Router       /v2/listings/refresh [post]
func (controller *ListingController) RefreshListings(c echo.Context) error {
	controller.svc.Cache.ForceRefresh(controller.svc.Config.Vertical)
	return c.NoContent(http.StatusNoContent)
}
