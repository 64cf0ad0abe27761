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
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	model2 "github.com/jerry-enebeli/tally/api/model"
)

// year reads the ?year= query, defaulting to the current year.
func year(c *gin.Context) string {
	return c.DefaultQuery("year", strconv.Itoa(time.Now().UTC().Year()))
}

func (a Api) ListLocks(c *gin.Context) {
	resp, err := a.tally.ListLocks(c.Request.Context(), year(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) CreateLock(c *gin.Context) {
	var req model2.CreateLock
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err)
		return
	}
	if err := req.ValidateCreateLock(); err != nil {
		respondInvalid(c, err)
		return
	}

	resp, err := a.tally.CreateLock(c.Request.Context(), req.YearMonth, req.Description, actor(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (a Api) ReleaseLock(c *gin.Context) {
	var req model2.ReleaseLock
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err)
		return
	}
	if err := req.ValidateReleaseLock(); err != nil {
		respondInvalid(c, err)
		return
	}

	resp, err := a.tally.ReleaseLock(c.Request.Context(), c.Param("year_month"), req.Reason, actor(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) GetLockAuditLogs(c *gin.Context) {
	resp, err := a.tally.GetLockAuditLogs(c.Request.Context(), year(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
