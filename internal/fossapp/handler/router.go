package handler

import (
	"net/http"

	"github.com/fosslighting/fossapp/internal/middleware"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the API. /api/viewer stays outside JWT for the
// embedded viewer; everything under /api/v1 requires a token.
func RegisterRoutes(r *gin.Engine, h *Handlers, jwtSecret string) {
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"code": 40400, "message": "Not found"})
	})

	viewer := r.Group("/api/viewer")
	{
		viewer.GET("/auth", h.Viewer.Auth)
		viewer.POST("/upload", h.Viewer.Upload)
		viewer.GET("/status/:urn", h.Viewer.Status)
	}

	v1 := r.Group("/api/v1", middleware.JWTAuth(jwtSecret))

	v1.GET("/dashboard", h.Catalog.Dashboard)
	v1.GET("/sse/events", h.SSE.Stream)

	// Projects
	projects := v1.Group("/projects")
	{
		projects.GET("", h.Project.ListProjects)
		projects.POST("", h.Project.CreateProject)
		projects.GET("/:id", h.Project.GetProject)
		projects.PUT("/:id", h.Project.UpdateProject)
		projects.PUT("/:id/status", h.Project.UpdateStatus)
		projects.POST("/:id/archive", h.Project.ArchiveProject)
		projects.DELETE("/:id", h.Project.DeleteProject)

		projects.GET("/:id/contacts", h.Project.ListContacts)
		projects.POST("/:id/contacts", h.Project.AddContact)
		projects.DELETE("/:id/contacts/:contactId", h.Project.DeleteContact)

		projects.GET("/:id/phases", h.Project.ListPhases)
		projects.POST("/:id/phases", h.Project.AddPhase)
		projects.PUT("/:id/phases/:phaseId/status", h.Project.UpdatePhaseStatus)

		projects.GET("/:id/documents", h.Document.List)
		projects.POST("/:id/documents", h.Document.Upload)
		projects.GET("/:id/documents/:docId/download", h.Document.Download)
		projects.DELETE("/:id/documents/:docId", h.Document.Delete)

		projects.GET("/:id/products", h.Product.ListByProject)

		projects.GET("/:id/areas", h.Area.ListAreas)
		projects.POST("/:id/areas", h.Area.CreateArea)
	}

	// Areas and versions
	areas := v1.Group("/areas")
	{
		areas.GET("/:areaId", h.Area.GetArea)
		areas.PUT("/:areaId", h.Area.UpdateArea)
		areas.DELETE("/:areaId", h.Area.DeleteArea)
		areas.GET("/:areaId/versions", h.Area.ListVersions)
		areas.POST("/:areaId/versions", h.Area.CreateVersion)
		areas.PUT("/:areaId/current-version/:number", h.Area.SetCurrentVersion)
	}

	versions := v1.Group("/versions")
	{
		versions.GET("/:versionId", h.Area.GetVersion)
		versions.DELETE("/:versionId", h.Area.DeleteVersion)
		versions.GET("/:versionId/summary", h.Area.GetSummary)
		versions.GET("/:versionId/export", h.Area.ExportSchedule)
		versions.POST("/:versionId/floor-plan", h.Area.UploadFloorPlan)
		versions.POST("/:versionId/floor-plan/refresh", h.Area.RefreshFloorPlan)
		versions.GET("/:versionId/products", h.Product.List)
		versions.POST("/:versionId/products", h.Product.Add)
	}

	lines := v1.Group("/project-products")
	{
		lines.PUT("/:lineId", h.Product.Update)
		lines.DELETE("/:lineId", h.Product.Remove)
	}

	// Catalog
	products := v1.Group("/products")
	{
		products.GET("", h.Catalog.SearchProducts)
		products.GET("/families", h.Catalog.ListFamilies)
		products.GET("/:productId", h.Catalog.GetProduct)
		products.POST("/import", middleware.RequireRole("admin"), h.Catalog.ImportProducts)
	}

	customers := v1.Group("/customers")
	{
		customers.GET("", h.Catalog.SearchCustomers)
		customers.POST("", h.Catalog.CreateCustomer)
		customers.GET("/:customerId", h.Catalog.GetCustomer)
	}

	currency := v1.Group("/currency")
	{
		currency.GET("/rates", h.Catalog.Rates)
		currency.GET("/convert", h.Catalog.Convert)
	}

	// Viewer aliases
	v1Viewer := v1.Group("/viewer")
	{
		v1Viewer.GET("/auth", h.Viewer.Auth)
		v1Viewer.POST("/upload", h.Viewer.Upload)
		v1Viewer.GET("/status/:urn", h.Viewer.Status)
	}

	// Tiles
	tiles := v1.Group("/tiles")
	{
		tiles.GET("/board", h.Tile.GetBoard)
		tiles.POST("/board/bucket", h.Tile.AddToBucket)
		tiles.DELETE("/board/bucket/:productId", h.Tile.RemoveFromBucket)
		tiles.POST("/board/move", h.Tile.Move)
		tiles.PATCH("/board/tiles/:tileId", h.Tile.RenameTile)
		tiles.DELETE("/board/tiles/:tileId", h.Tile.DeleteTile)
		tiles.DELETE("/board", h.Tile.ClearBoard)
		tiles.POST("/:tileId/generate", h.Tile.Generate)
		tiles.GET("/jobs/:jobId", h.Tile.GetJob)
	}
}
