package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/personaforge/backend/internal/requestdata"
	"github.com/personaforge/backend/internal/services"
	"github.com/personaforge/backend/internal/types"
)

type VersionHandler struct {
	versionService services.VersionService
}

func NewVersionHandler(versionService services.VersionService) *VersionHandler {
	return &VersionHandler{versionService: versionService}
}

func (vh *VersionHandler) List(c *gin.Context) {
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
	versions, err := vh.versionService.List(c.Request.Context(), personaID, rd.UserID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, versions)
}

func (vh *VersionHandler) Create(c *gin.Context) {
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
	var req struct {
		Label           string                `json:"label"`
		Name            string                `json:"name"`
		Snapshot        types.VersionSnapshot `json:"snapshot"`
		ParentVersionID *uuid.UUID            `json:"parent_version_id"`
		Notes           string                `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid request body"))
		return
	}
	version, err := vh.versionService.Create(c.Request.Context(), personaID, services.CreateVersionInput{
		Label:           req.Label,
		Name:            req.Name,
		Snapshot:        req.Snapshot,
		ParentVersionID: req.ParentVersionID,
		Notes:           req.Notes,
		CreatedBy:       rd.UserID,
	})
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, version)
}

func (vh *VersionHandler) Publish(c *gin.Context) {
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
	versionID, err := uuid.Parse(c.Param("versionId"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid version id"))
		return
	}
	version, err := vh.versionService.Publish(c.Request.Context(), personaID, versionID, rd.UserID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, version)
}

func (vh *VersionHandler) Lineage(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("missing request identity"))
		return
	}
	versionID, err := uuid.Parse(c.Param("versionId"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid version id"))
		return
	}
	chain, err := vh.versionService.Lineage(c.Request.Context(), versionID, rd.UserID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, chain)
}
