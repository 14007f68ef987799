package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/personaforge/backend/internal/requestdata"
	"github.com/personaforge/backend/internal/services"
)

type ArchiveHandler struct {
	archiveService services.ArchiveService
}

func NewArchiveHandler(archiveService services.ArchiveService) *ArchiveHandler {
	return &ArchiveHandler{archiveService: archiveService}
}

func (ah *ArchiveHandler) Export(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("missing request identity"))
		return
	}
	personaID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid persona id"))
		return
	}

	opts := services.ExportOptions{
		IncludeInteractions: boolQuery(c, "include_interactions", true),
		IncludeFiles:        boolQuery(c, "include_files", true),
		IncludeImages:       boolQuery(c, "include_images", true),
	}
	data, err := ah.archiveService.Export(c.Request.Context(), rd.UserID, personaID, opts)
	if err != nil {
		RespondServiceError(c, err)
		return
	}

	filename := fmt.Sprintf("persona-%s.zip", personaID)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/zip", data)
}

func (ah *ArchiveHandler) Import(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("missing request identity"))
		return
	}

	fileHeader, err := c.FormFile("archive")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("archive file is required"))
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}

	opts := services.ImportOptions{
		PreserveID:         boolForm(c, "preserve_id", false),
		ImportFiles:        boolForm(c, "import_files", true),
		ImportInteractions: boolForm(c, "import_interactions", true),
	}
	result, err := ah.archiveService.Import(c.Request.Context(), rd.UserID, data, opts)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, result)
}

func boolQuery(c *gin.Context, key string, fallback bool) bool {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}

func boolForm(c *gin.Context, key string, fallback bool) bool {
	raw := c.PostForm(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}
