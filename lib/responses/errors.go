package responses

import (
	"net/http"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"
)

type ErrorResponse struct {
	Error          bool   `json:"error"`
	Code           int    `json:"code"`
	Message        string `json:"message"`
	HttpStatusCode int    `json:"-"`
}

var GeneralServerError = ErrorResponse{
	Error:          true,
	Code:           6,
	Message:        "Something went wrong. Please try again later",
	HttpStatusCode: 500,
}

var BadArgumentsError = ErrorResponse{
	Error:          true,
	Code:           8,
	Message:        "Bad arguments",
	HttpStatusCode: 400,
}

var LocationRequiredError = ErrorResponse{
	Error:          true,
	Code:           2,
	Message:        "a valid location is required to start a session",
	HttpStatusCode: 400,
}

var SessionActiveError = ErrorResponse{
	Error:          true,
	Code:           3,
	Message:        "a session is already active; stop it first",
	HttpStatusCode: 409,
}

var NoSessionError = ErrorResponse{
	Error:          true,
	Code:           3,
	Message:        "no active session",
	HttpStatusCode: 404,
}

var NoCandidateError = ErrorResponse{
	Error:          true,
	Code:           4,
	Message:        "no open request to accept",
	HttpStatusCode: 409,
}

var ListingNotFoundError = ErrorResponse{
	Error:          true,
	Code:           5,
	Message:        "listing not found or not owned by this identity",
	HttpStatusCode: 404,
}

var RelaysUnreachableError = ErrorResponse{
	Error:          true,
	Code:           7,
	Message:        "no relay is currently reachable",
	HttpStatusCode: 503,
}

func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	c.Logger().Error(err)
	if hub := sentryecho.GetHubFromContext(c); hub != nil {
		hub.WithScope(func(scope *sentry.Scope) {
			scope.SetExtra("RequestID", c.Response().Header().Get(echo.HeaderXRequestID))
			hub.CaptureException(err)
		})
	}
	code := http.StatusInternalServerError
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		c.JSON(code, he.Message)
	} else {
		c.JSON(http.StatusInternalServerError, GeneralServerError)
	}
}
