package controllers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/worldpeaceenginelabs/cloudatlas.go/geohash"
	"github.com/worldpeaceenginelabs/cloudatlas.go/lib/responses"
	"github.com/worldpeaceenginelabs/cloudatlas.go/lib/service"
)

// RequestController : Requester session controller struct
type RequestController struct {
	svc *service.Service
}

func NewRequestController(svc *service.Service) *RequestController {
	return &RequestController{svc: svc}
}

type CreateRequestBody struct {
	Lat     float64           `json:"lat" validate:"min=-90,max=90"`
	Lon     float64           `json:"lon" validate:"min=-180,max=180"`
	DestLat *float64          `json:"dest_lat,omitempty"`
	DestLon *float64          `json:"dest_lon,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// CreateRequest godoc
// @Summary      Publish a need and start matching
// @Description  Publishes the request into its geohash cell and starts a requester session
// @Accept       json
// @Produce      json
// @Tags         Matching
// @Param        CreateRequestBody  body      CreateRequestBody  True  "Request"
// @Success      200                {object}  service.GigRequest
// @Failure      400                {object}  responses.ErrorResponse
// @Failure      409                {object}  responses.ErrorResponse
// @Router       /v2/requests [post]
func (controller *RequestController) CreateRequest(c echo.Context) error {
	var body CreateRequestBody
	if err := c.Bind(&body); err != nil {
		c.Logger().Errorf("Failed to load create request body: %v", err)
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}
	if err := c.Validate(&body); err != nil {
		c.Logger().Errorf("Invalid create request body: %v", err)
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}

	start := geohash.Point{Lat: body.Lat, Lon: body.Lon}
	var dest *geohash.Point
	if body.DestLat != nil && body.DestLon != nil {
		dest = &geohash.Point{Lat: *body.DestLat, Lon: *body.DestLon}
	}

	req, err := controller.svc.StartAsRequester(c.Request().Context(), start, dest, body.Details)
	if err != nil {
		if errors.Is(err, service.ErrSessionActive) {
			return c.JSON(http.StatusConflict, responses.SessionActiveError)
		}
		c.Logger().Errorf("Failed to start requester session: %v", err)
		return c.JSON(http.StatusBadRequest, responses.LocationRequiredError)
	}
	return c.JSON(http.StatusOK, req)
}

// CancelRequest godoc
// @Summary      Cancel the current request
// @Description  Takes the request down from the relays and ends the session
// @Produce      json
// @Tags         Matching
// @Success      204
// @Failure      404  {object}  responses.ErrorResponse
// @Router       /v2/requests/current [delete]
func (controller *RequestController) CancelRequest(c echo.Context) error {
	snap, ok := controller.svc.CurrentSession()
	if !ok || snap.Role != string(service.RoleRequester) {
		return c.JSON(http.StatusNotFound, responses.NoSessionError)
	}
	if err := controller.svc.CancelSession(); err != nil {
		if errors.Is(err, service.ErrNoSession) {
			return c.JSON(http.StatusNotFound, responses.NoSessionError)
		}
		c.Logger().Errorf("Failed to cancel request: %v", err)
		return c.JSON(http.StatusInternalServerError, responses.GeneralServerError)
	}
	return c.NoContent(http.StatusNoContent)
}
