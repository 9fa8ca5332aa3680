package controllers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/worldpeaceenginelabs/cloudatlas.go/geohash"
	"github.com/worldpeaceenginelabs/cloudatlas.go/lib/responses"
	"github.com/worldpeaceenginelabs/cloudatlas.go/lib/service"
)

// OfferController : Provider session controller struct
type OfferController struct {
	svc *service.Service
}

func NewOfferController(svc *service.Service) *OfferController {
	return &OfferController{svc: svc}
}

type CreateOfferBody struct {
	Lat     float64           `json:"lat" validate:"min=-90,max=90"`
	Lon     float64           `json:"lon" validate:"min=-180,max=180"`
	Details map[string]string `json:"details,omitempty"`
}

type AcceptBody struct {
	RequestID string `json:"request_id" validate:"required"`
}

// CreateOffer godoc
// @Summary      Announce availability and start listening
// @Description  Publishes an offer into its geohash cell and starts a provider session
// @Accept       json
// @Produce      json
// @Tags         Matching
// @Param        CreateOfferBody  body      CreateOfferBody  True  "Offer"
// @Success      200              {object}  service.Offer
// @Failure      400              {object}  responses.ErrorResponse
// @Failure      409              {object}  responses.ErrorResponse
// @Router       /v2/offers [post]
func (controller *OfferController) CreateOffer(c echo.Context) error {
	var body CreateOfferBody
	if err := c.Bind(&body); err != nil {
		c.Logger().Errorf("Failed to load create offer body: %v", err)
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}
	if err := c.Validate(&body); err != nil {
		c.Logger().Errorf("Invalid create offer body: %v", err)
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}

	offer, err := controller.svc.StartAsProvider(c.Request().Context(), geohash.Point{Lat: body.Lat, Lon: body.Lon}, body.Details)
	if err != nil {
		if errors.Is(err, service.ErrSessionActive) {
			return c.JSON(http.StatusConflict, responses.SessionActiveError)
		}
		c.Logger().Errorf("Failed to start provider session: %v", err)
		return c.JSON(http.StatusBadRequest, responses.LocationRequiredError)
	}
	return c.JSON(http.StatusOK, offer)
}

// AcceptRequest godoc
// @Summary      Accept the current candidate request
// @Description  Sends the accept signal to the request's owner; the match becomes final when the requester's record names this provider
// @Accept       json
// @Produce      json
// @Tags         Matching
// @Param        AcceptBody  body  AcceptBody  True  "Accept"
// @Success      200         {object}  service.SessionSnapshot
// @Failure      404         {object}  responses.ErrorResponse
// @Router       /v2/offers/accept [post]
func (controller *OfferController) AcceptRequest(c echo.Context) error {
	var body AcceptBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}
	if err := c.Validate(&body); err != nil {
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}
	snap, ok := controller.svc.CurrentSession()
	if !ok || snap.Role != string(service.RoleProvider) {
		return c.JSON(http.StatusNotFound, responses.NoSessionError)
	}
	if snap.Candidate == nil {
		return c.JSON(http.StatusConflict, responses.NoCandidateError)
	}
	if err := controller.svc.AcceptRequest(body.RequestID); err != nil {
		return c.JSON(http.StatusNotFound, responses.NoSessionError)
	}
	snap, _ = controller.svc.CurrentSession()
	return c.JSON(http.StatusOK, snap)
}

// DeclineRequest godoc
// @Summary      Decline the current candidate request
// @Produce      json
// @Tags         Matching
// @Success      200  {object}  service.SessionSnapshot
// @Failure      404  {object}  responses.ErrorResponse
// @Router       /v2/offers/decline [post]
func (controller *OfferController) DeclineRequest(c echo.Context) error {
	snap, ok := controller.svc.CurrentSession()
	if !ok || snap.Role != string(service.RoleProvider) {
		return c.JSON(http.StatusNotFound, responses.NoSessionError)
	}
	if err := controller.svc.DeclineRequest(); err != nil {
		return c.JSON(http.StatusNotFound, responses.NoSessionError)
	}
	snap, _ = controller.svc.CurrentSession()
	return c.JSON(http.StatusOK, snap)
}

// StopOffer godoc
// @Summary      Withdraw the offer
// @Description  Takes the offer down from the relays and ends the session
// @Produce      json
// @Tags         Matching
// @Success      204
// @Failure      404  {object}  responses.ErrorResponse
// @Router       /v2/offers/current [delete]
func (controller *OfferController) StopOffer(c echo.Context) error {
	snap, ok := controller.svc.CurrentSession()
	if !ok || snap.Role != string(service.RoleProvider) {
		return c.JSON(http.StatusNotFound, responses.NoSessionError)
	}
	if err := controller.svc.CancelSession(); err != nil {
		if errors.Is(err, service.ErrNoSession) {
			return c.JSON(http.StatusNotFound, responses.NoSessionError)
		}
		c.Logger().Errorf("Failed to stop offer: %v", err)
		return c.JSON(http.StatusInternalServerError, responses.GeneralServerError)
	}
	return c.NoContent(http.StatusNoContent)
}
