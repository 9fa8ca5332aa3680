package controllers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/skip2/go-qrcode"

	"github.com/worldpeaceenginelabs/cloudatlas.go/lib/responses"
	"github.com/worldpeaceenginelabs/cloudatlas.go/lib/service"
)

// InfoController : Daemon identity and relay status controller struct
type InfoController struct {
	svc *service.Service
}

func NewInfoController(svc *service.Service) *InfoController {
	return &InfoController{svc: svc}
}

type InfoResponse struct {
	Pubkey          string `json:"pubkey"`
	Npub            string `json:"npub"`
	Vertical        string `json:"vertical"`
	ConnectedRelays int    `json:"connected_relays"`
	TotalRelays     int    `json:"total_relays"`
}

// GetInfo godoc
// @Summary      Daemon identity and relay status
// @Produce      json
// @Tags         Info
// @Success      200  {object}  InfoResponse
// @Router       /v2/info [get]
func (controller *InfoController) GetInfo(c echo.Context) error {
	pubkey := controller.svc.Pool.PublicKey()
	npub, err := nip19.EncodePublicKey(pubkey)
	if err != nil {
		c.Logger().Errorf("Failed to encode pubkey: %v", err)
		return c.JSON(http.StatusInternalServerError, responses.GeneralServerError)
	}
	connected, total := controller.svc.Pool.Status()
	return c.JSON(http.StatusOK, &InfoResponse{
		Pubkey:          pubkey,
		Npub:            npub,
		Vertical:        controller.svc.Config.Vertical,
		ConnectedRelays: connected,
		TotalRelays:     total,
	})
}

// GetInfoQR godoc
// @Summary      Identity QR code
// @Description  Returns the daemon's npub as a PNG QR code
// @Produce      image/png
// @Tags         Info
// @Success      200
// @Router       /v2/info/qr [get]
func (controller *InfoController) GetInfoQR(c echo.Context) error {
	npub, err := nip19.EncodePublicKey(controller.svc.Pool.PublicKey())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, responses.GeneralServerError)
	}
	png, err := qrcode.Encode("nostr:"+npub, qrcode.Medium, 256)
	if err != nil {
		c.Logger().Errorf("Failed to encode QR: %v", err)
		return c.JSON(http.StatusInternalServerError, responses.GeneralServerError)
	}
	return c.Blob(http.StatusOK, "image/png", png)
}
