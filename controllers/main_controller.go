package controllers

import (
	"net/http"

	"github.com/CUknot/roomchat/config"
	"github.com/CUknot/roomchat/repository"
	"github.com/gin-gonic/gin"
)

const (
	languageCookie = "lang"
	languageMaxAge = 60 * 60 * 24 * 90
)

// MainController serves site wide data: categories, the sidebar and the
// language switch.
type MainController struct {
	store *repository.Store
	cfg   *config.Config
}

func NewMainController(store *repository.Store, cfg *config.Config) *MainController {
	return &MainController{store: store, cfg: cfg}
}

// GetCategories godoc
// @Summary List categories
// @Tags main
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/categories [get]
func (m *MainController) GetCategories(c *gin.Context) {
	categories, err := m.store.ListCategories(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch categories"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

// GetSidebar godoc
// @Summary Sidebar data
// @Description Busiest categories, the total room count and the available languages
// @Tags main
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/sidebar [get]
func (m *MainController) GetSidebar(c *gin.Context) {
	ctx := c.Request.Context()
	// One slot of the sidebar is taken by the "all rooms" entry.
	categories, err := m.store.TopCategories(ctx, m.cfg.CategoriesAtSidebar-1)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch categories"})
		return
	}
	total, err := m.store.CountRooms(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count rooms"})
		return
	}

	lang, _ := c.Cookie(languageCookie)
	c.JSON(http.StatusOK, gin.H{
		"categories":  categories,
		"total_rooms": total,
		"languages":   m.cfg.Languages,
		"language":    m.cfg.Language(lang),
	})
}

// SetLanguage godoc
// @Summary Switch language
// @Description Stores the language in a cookie for 90 days; unknown codes fall back to en
// @Tags main
// @Produce json
// @Param lang query string false "Language code"
// @Success 200 {object} map[string]string
// @Router /api/language [get]
func (m *MainController) SetLanguage(c *gin.Context) {
	lang := m.cfg.Language(c.DefaultQuery("lang", "en"))
	c.SetCookie(languageCookie, lang, languageMaxAge, "/", "", false, false)
	c.JSON(http.StatusOK, gin.H{"language": lang})
}
