package handlers

import (
	"net/http"
	"strings"

	"fleet-dashboard/internal/backend"
	"fleet-dashboard/internal/models"

	"github.com/gin-gonic/gin"
)

// Translations returns the nested translation tree of a language. Before
// login the tree is empty.
func (a *API) Translations(c *gin.Context) {
	m, ok := tab(c)
	if !ok {
		return
	}
	lang := strings.ToLower(c.Param("lang"))

	tree, err := a.Translator.Load(c.Request.Context(), roleOf(m), lang, m)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tree)
}

func (a *API) Languages(c *gin.Context) {
	m, ok := tab(c)
	if !ok {
		return
	}

	langs, err := a.Translator.Languages(c.Request.Context(), roleOf(m), m)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"languages": langs})
}

type translationForm struct {
	Items []struct {
		Key   string `json:"key" binding:"required"`
		Value string `json:"value"`
	} `json:"items" binding:"required,dive"`
}

// UpdateTranslations stores a batch of edits for a language and drops
// the cached tree so the next load sees them.
func (a *API) UpdateTranslations(c *gin.Context) {
	m, ok := tab(c)
	if !ok {
		return
	}
	lang := strings.ToLower(c.Param("lang"))

	var form translationForm
	if err := c.ShouldBindJSON(&form); err != nil {
		badRequest(c, "items with key and value are required")
		return
	}

	edits := make([]backend.TranslationEdit, 0, len(form.Items))
	for _, it := range form.Items {
		edits = append(edits, backend.TranslationEdit{Key: it.Key, Value: it.Value})
	}

	saved, err := a.Backend.SetTranslationsBulk(c.Request.Context(), models.RoleManager, m, lang, edits)
	if err != nil {
		respondError(c, err)
		return
	}
	a.Translator.Invalidate(lang)
	c.JSON(http.StatusOK, gin.H{"saved": saved, "count": len(edits)})
}
