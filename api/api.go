/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jerry-enebeli/tally"
	"github.com/jerry-enebeli/tally/api/middleware"
	"github.com/jerry-enebeli/tally/config"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type Api struct {
	tally  *tally.Tally
	router *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router

	router.POST("/uploads", a.UploadVouchers)
	router.GET("/uploads", a.ListJobs)
	router.POST("/uploads/batch-delete", a.BatchDeleteJobs)
	router.GET("/uploads/:id", a.GetJob)
	router.POST("/uploads/:id/confirm", a.ConfirmJob)
	router.POST("/uploads/:id/rematch", a.RematchJob)

	router.GET("/counterparties", a.ListCounterparties)
	router.POST("/counterparties/batch", a.BatchCreateCounterparties)
	router.POST("/counterparties/:id/aliases", a.MapUnmatchedCounterparty)

	router.GET("/period-locks", a.ListLocks)
	router.POST("/period-locks", a.CreateLock)
	router.GET("/period-locks/audit-logs", a.GetLockAuditLogs)
	router.POST("/period-locks/:year_month/release", a.ReleaseLock)

	return a.router
}

// NewAPI builds the gin engine with tracing, rate limiting and key
// authentication in front of every route.
func NewAPI(t *tally.Tally) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(conf.ProjectName))
	r.Use(middleware.RateLimitMiddleware(conf))
	r.Use(middleware.NewAuthMiddleware().Authenticate())

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, "server running...")
	})

	return &Api{tally: t, router: r}
}

func actor(c *gin.Context) string {
	if a := c.GetString(middleware.ActorKey); a != "" {
		return a
	}
	return "anonymous"
}
