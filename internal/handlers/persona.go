package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/personaforge/backend/internal/requestdata"
	"github.com/personaforge/backend/internal/services"
)

type PersonaHandler struct {
	personaService services.PersonaService
}

func NewPersonaHandler(personaService services.PersonaService) *PersonaHandler {
	return &PersonaHandler{personaService: personaService}
}

func (ph *PersonaHandler) Create(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("missing request identity"))
		return
	}
	var req struct {
		Name         string         `json:"name"`
		Age          int            `json:"age"`
		Occupation   string         `json:"occupation"`
		Location     string         `json:"location"`
		Introduction string         `json:"introduction"`
		Traits       []string       `json:"traits"`
		Interests    []string       `json:"interests"`
		Attributes   map[string]any `json:"attributes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid request body"))
		return
	}
	persona, err := ph.personaService.Create(c.Request.Context(), rd.UserID, services.CreatePersonaInput{
		Name:         req.Name,
		Age:          req.Age,
		Occupation:   req.Occupation,
		Location:     req.Location,
		Introduction: req.Introduction,
		Traits:       req.Traits,
		Interests:    req.Interests,
		Attributes:   req.Attributes,
	})
	if err != nil {
		RespondError(c, http.StatusBadRequest, "create_failed", err)
		return
	}
	RespondOK(c, persona)
}

func (ph *PersonaHandler) List(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("missing request identity"))
		return
	}
	personas, err := ph.personaService.List(c.Request.Context(), rd.UserID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, personas)
}

func (ph *PersonaHandler) Get(c *gin.Context) {
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
	persona, err := ph.personaService.Get(c.Request.Context(), rd.UserID, personaID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, persona)
}

func (ph *PersonaHandler) UploadImage(c *gin.Context) {
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
	fileHeader, err := c.FormFile("image")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("image file is required"))
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
	persona, err := ph.personaService.UploadImage(c.Request.Context(), rd.UserID, personaID, fileHeader.Filename, data)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, persona)
}

func (ph *PersonaHandler) RecordInteraction(c *gin.Context) {
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
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid request body"))
		return
	}
	interaction, err := ph.personaService.RecordInteraction(c.Request.Context(), rd.UserID, personaID, req.Role, req.Content)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, interaction)
}

func (ph *PersonaHandler) ListInteractions(c *gin.Context) {
	personaID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid persona id"))
		return
	}
	interactions, err := ph.personaService.ListInteractions(c.Request.Context(), personaID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, interactions)
}
