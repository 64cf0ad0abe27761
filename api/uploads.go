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
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	model2 "github.com/jerry-enebeli/tally/api/model"
	"github.com/jerry-enebeli/tally/model"
)

// UploadVouchers accepts a multipart upload with a "file" part and a "kind"
// form field and answers 202 with the queued job.
func (a Api) UploadVouchers(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondInvalid(c, errors.New("file is required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respondInvalid(c, err)
		return
	}
	defer file.Close()

	kind := model.JobKind(c.PostForm("kind"))
	job, err := a.tally.UploadVouchers(c.Request.Context(), kind, fileHeader.Filename, file, actor(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, job)
}

func (a Api) ListJobs(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	jobs, err := a.tally.ListJobs(c.Request.Context(), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, jobs)
}

func (a Api) GetJob(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		respondInvalid(c, errors.New("id is required. pass id in the route /:id"))
		return
	}

	resp, err := a.tally.GetJob(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) ConfirmJob(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		respondInvalid(c, errors.New("id is required. pass id in the route /:id"))
		return
	}

	resp, err := a.tally.ConfirmJob(c.Request.Context(), id, actor(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) RematchJob(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		respondInvalid(c, errors.New("id is required. pass id in the route /:id"))
		return
	}

	resp, err := a.tally.RematchJob(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) BatchDeleteJobs(c *gin.Context) {
	var req model2.BatchDeleteJobs
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err)
		return
	}
	if err := req.ValidateBatchDeleteJobs(); err != nil {
		respondInvalid(c, err)
		return
	}

	deleted, err := a.tally.BatchDeleteJobs(c.Request.Context(), req.JobIDs)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted_count": deleted})
}
