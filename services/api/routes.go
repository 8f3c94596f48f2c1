// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the gateway routes with the router.
//
// Description:
//
//	Registers all /v1/* endpoints with the given Gin router group. The
//	group should already carry the authentication middleware; health and
//	metrics endpoints are registered on the engine by the caller.
//
// Endpoints:
//
//	POST   /v1/images - Synchronous upload and caption
//	POST   /v1/images/async - Enqueue an ingestion job
//	GET    /v1/jobs/:id - Job status and terminal result
//	GET    /v1/search - Hybrid text search
//	GET    /v1/images - List tenant-visible images
//	GET    /v1/images/:id - Image metadata
//	GET    /v1/images/:id/download - Original bytes
//	GET    /v1/images/:id/thumbnail - Thumbnail bytes
//	PATCH  /v1/images/:id - Change visibility
//	DELETE /v1/images/:id - Soft delete
//	GET    /v1/limits - Egress budget and breaker state
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	images := rg.Group("/images")
	{
		images.POST("", handlers.HandleUploadSync)
		images.POST("/async", handlers.HandleUploadAsync)
		images.GET("", handlers.HandleListImages)
		images.GET("/:id", handlers.HandleGetImage)
		images.GET("/:id/download", handlers.HandleDownload)
		images.GET("/:id/thumbnail", handlers.HandleThumbnail)
		images.PATCH("/:id", handlers.HandleSetVisibility)
		images.DELETE("/:id", handlers.HandleDeleteImage)
	}

	rg.GET("/jobs/:id", handlers.HandleJobStatus)
	rg.GET("/search", handlers.HandleSearch)
	rg.GET("/limits", handlers.HandleLimits)
}
