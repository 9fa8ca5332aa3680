package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/worldpeaceenginelabs/cloudatlas.go/lib/responses"
	"github.com/worldpeaceenginelabs/cloudatlas.go/lib/service"
)

// SessionController : Session snapshot and notification stream controller struct
type SessionController struct {
	svc *service.Service
}

func NewSessionController(svc *service.Service) *SessionController {
	return &SessionController{svc: svc}
}

// GetSession godoc
// @Summary      Current session snapshot
// @Description  Returns the live matching session, if any
// @Produce      json
// @Tags         Session
// @Success      200  {object}  service.SessionSnapshot
// @Failure      404  {object}  responses.ErrorResponse
// @Router       /v2/session [get]
func (controller *SessionController) GetSession(c echo.Context) error {
	snap, ok := controller.svc.CurrentSession()
	if !ok {
		return c.JSON(http.StatusNotFound, responses.NoSessionError)
	}
	return c.JSON(http.StatusOK, snap)
}

// StreamNotifications godoc
// @Summary      Notification stream
// @Description  Server-sent events stream of session notifications
// @Produce      text/event-stream
// @Tags         Session
// @Success      200
// @Router       /v2/session/stream [get]
func (controller *SessionController) StreamNotifications(c echo.Context) error {
	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	ch := make(chan service.Notification, 16)
	subId := controller.svc.Notifier.Subscribe(ch)
	defer controller.svc.Notifier.Unsubscribe(subId)

	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case n := <-ch:
			payload, err := json.Marshal(n)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", n.Type, payload); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}
