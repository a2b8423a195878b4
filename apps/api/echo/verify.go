package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/cheti/core/certificate"
)

type verifyApi struct {
	svc *certificate.Service
}

// registerVerifyAPI mounts the public verification endpoint, at the path signed links point to.
func registerVerifyAPI(app *echo.Echo, svc *certificate.Service) {
	api := verifyApi{svc: svc}
	app.GET("/verify/:data/:signature", api.verify)
}

func (api *verifyApi) verify(ctx echo.Context) error {
	v, err := api.svc.Verify(ctx.Request().Context(), ctx.Param("data"), ctx.Param("signature"))
	if err != nil {
		return errors.Wrap(err, "verifying certificate")
	}
	return ctx.JSON(http.StatusOK, v)
}
