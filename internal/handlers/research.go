package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/personaforge/backend/internal/requestdata"
	"github.com/personaforge/backend/internal/services"
)

type ResearchHandler struct {
	researchService services.ResearchService
}

func NewResearchHandler(researchService services.ResearchService) *ResearchHandler {
	return &ResearchHandler{researchService: researchService}
}

// Upload accepts a multipart form: text fields describing the item plus
// any number of attachments under the "files" key.
func (rh *ResearchHandler) Upload(c *gin.Context) {
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

	form, err := c.MultipartForm()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("multipart form required"))
		return
	}

	input := services.CreateResearchInput{
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		Content:     c.PostForm("content"),
		Category:    c.PostForm("category"),
		Source:      c.PostForm("source"),
	}
	if tags := c.PostForm("tags"); tags != "" {
		for _, tag := range strings.Split(tags, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				input.Tags = append(input.Tags, tag)
			}
		}
	}
	if raw := c.PostForm("relevant_date"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			input.RelevantDate = &t
		}
	}

	for _, fileHeader := range form.File["files"] {
		f, err := fileHeader.Open()
		if err != nil {
			RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("open %s: %w", fileHeader.Filename, err))
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("read %s: %w", fileHeader.Filename, err))
			return
		}
		input.Files = append(input.Files, services.ResearchUpload{
			OriginalName: fileHeader.Filename,
			MimeType:     fileHeader.Header.Get("Content-Type"),
			Data:         data,
		})
	}

	item, err := rh.researchService.CreateItem(c.Request.Context(), rd.UserID, personaID, input)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, item)
}

func (rh *ResearchHandler) AddNote(c *gin.Context) {
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
		Title string `json:"title"`
		Text  string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid request body"))
		return
	}
	item, err := rh.researchService.AddNote(c.Request.Context(), rd.UserID, personaID, req.Title, req.Text)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, item)
}

func (rh *ResearchHandler) List(c *gin.Context) {
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
	items, err := rh.researchService.ListItems(c.Request.Context(), rd.UserID, personaID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, items)
}

func (rh *ResearchHandler) Get(c *gin.Context) {
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
	itemID, err := uuid.Parse(c.Param("itemId"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid research item id"))
		return
	}
	item, err := rh.researchService.GetItem(c.Request.Context(), rd.UserID, personaID, itemID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, item)
}

func (rh *ResearchHandler) Search(c *gin.Context) {
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
	query := c.Query("q")
	if query == "" {
		RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("query parameter q is required"))
		return
	}
	topK := 5
	if raw := c.Query("top_k"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			topK = n
		}
	}
	results, err := rh.researchService.Search(c.Request.Context(), rd.UserID, personaID, query, topK)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"results": results})
}
