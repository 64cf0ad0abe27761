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
	model2 "github.com/jerry-enebeli/tally/api/model"
)

func (a Api) ListCounterparties(c *gin.Context) {
	resp, err := a.tally.ListCounterparties(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) BatchCreateCounterparties(c *gin.Context) {
	var req model2.BatchCreateCounterparties
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err)
		return
	}
	if err := req.ValidateBatchCreateCounterparties(); err != nil {
		respondInvalid(c, err)
		return
	}

	resp, err := a.tally.BatchCreateCounterparties(c.Request.Context(), req.ToNames(), actor(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// MapUnmatchedCounterparty registers a spreadsheet spelling as an alias of
// the counterparty in the route.
func (a Api) MapUnmatchedCounterparty(c *gin.Context) {
	var req model2.MapAlias
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err)
		return
	}
	if err := req.ValidateMapAlias(); err != nil {
		respondInvalid(c, err)
		return
	}

	id := c.Param("id")
	if err := a.tally.MapUnmatchedCounterparty(c.Request.Context(), req.Alias, id, actor(c)); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"counterparty_id": id, "alias": req.Alias})
}
