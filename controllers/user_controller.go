package controllers

import (
	"net/http"

	"github.com/CUknot/roomchat/middleware"
	"github.com/CUknot/roomchat/repository"
	"github.com/gin-gonic/gin"
)

const profileRooms = 5

type EditProfileInput struct {
	Name    string `json:"name" binding:"max=64" example:"Bob Smith"`
	AboutMe string `json:"about_me" example:"Gopher"`
}

// UserController serves profile pages.
type UserController struct {
	store *repository.Store
}

func NewUserController(store *repository.Store) *UserController {
	return &UserController{store: store}
}

// GetUser godoc
// @Summary Get a user profile
// @Description Returns the user and the rooms they joined most recently
// @Tags users
// @Produce json
// @Param username path string true "Username"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string "User not found"
// @Router /api/users/{username} [get]
func (u *UserController) GetUser(c *gin.Context) {
	ctx := c.Request.Context()
	user, err := u.store.FindUserByUsername(ctx, c.Param("username"))
	if err != nil {
		abortWithStoreError(c, err, "User")
		return
	}
	rooms, err := u.store.RecentRoomsOfUser(ctx, user.ID, profileRooms)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch rooms"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":   user,
		"avatar": user.GravatarURL(256),
		"rooms":  rooms,
	})
}

// EditProfile godoc
// @Summary Edit own profile
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param profile body EditProfileInput true "Profile"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string "Invalid input"
// @Router /api/users/me [put]
func (u *UserController) EditProfile(c *gin.Context) {
	var input EditProfileInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := middleware.CurrentUser(c)
	user.Name = input.Name
	user.AboutMe = input.AboutMe
	if err := u.store.UpdateUser(c.Request.Context(), user); err != nil {
		abortWithStoreError(c, err, "User")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Profile info successfully updated.", "user": user})
}
