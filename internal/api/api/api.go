package api

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/wb-go/wbf/ginext"

	"github.com/murphylan/scansign-sub001/cmd/middleware"
	"github.com/murphylan/scansign-sub001/internal/service"
)

type Routers struct {
	Service service.Service
}

func NewRouters(r *Routers) *ginext.Engine {
	app := ginext.New("release")

	app.Use(middleware.LoggingMiddleware())
	app.Use(cors.Default())
	apiGroup := app.Group("/v1")

	apiGroup.POST("/activities", r.Service.CreateActivity)
	apiGroup.GET("/activities", r.Service.ListActivities)
	apiGroup.GET("/activities/:id", r.Service.GetActivity)
	apiGroup.PUT("/activities/:id", r.Service.UpdateActivity)
	apiGroup.DELETE("/activities/:id", r.Service.DeleteActivity)
	apiGroup.POST("/activities/:id/reset", r.Service.ResetActivity)

	apiGroup.POST("/activities/:id/checkin", r.Service.Checkin)
	apiGroup.POST("/activities/:id/vote", r.Service.Vote)
	apiGroup.POST("/activities/:id/entry", r.Service.Enter)
	apiGroup.POST("/activities/:id/form", r.Service.SubmitForm)
	apiGroup.POST("/activities/:id/draw", r.Service.Draw)

	apiGroup.GET("/activities/:id/stream", r.Service.Stream)
	apiGroup.GET("/activities/:id/join", r.Service.JoinLink)

	// Short-code lookup lives outside /activities so the static segment
	// does not collide with the :id wildcard.
	apiGroup.GET("/codes/:code", r.Service.GetActivityByCode)

	apiGroup.POST("/login/qrcode", r.Service.CreateLoginQR)
	apiGroup.GET("/login/sessions/:token", r.Service.GetLoginSession)
	apiGroup.POST("/login/sessions/:token/scan", r.Service.ScanLogin)
	apiGroup.POST("/login/sessions/:token/confirm", r.Service.ConfirmLogin)

	// QR join links land here; send the scanner to the code lookup.
	app.GET("/a/:code", func(c *ginext.Context) {
		c.Redirect(http.StatusFound, "/v1/codes/"+c.Param("code"))
	})

	return app
}
