package controllers

import (
	"errors"
	"log"
	"net/http"

	"github.com/CUknot/roomchat/middleware"
	"github.com/CUknot/roomchat/models"
	"github.com/CUknot/roomchat/notify"
	"github.com/CUknot/roomchat/repository"
	"github.com/CUknot/roomchat/utils"
	"github.com/gin-gonic/gin"
)

type RegisterInput struct {
	Username  string `json:"username" binding:"required,max=64" example:"bob"`
	Email     string `json:"email" binding:"required,email,max=64" example:"bob@example.com"`
	Password  string `json:"password" binding:"required" example:"secret"`
	Password2 string `json:"password2" binding:"required,eqfield=Password" example:"secret"`
}

type LoginInput struct {
	Username string `json:"username" binding:"required,max=64" example:"bob"`
	Password string `json:"password" binding:"required" example:"secret"`
}

type ChangePasswordInput struct {
	OldPassword string `json:"old_password" binding:"required"`
	Password    string `json:"password" binding:"required"`
	Password2   string `json:"password2" binding:"required,eqfield=Password"`
}

type EmailInput struct {
	Email string `json:"email" binding:"required,email,max=64" example:"bob@example.com"`
}

type ResetPasswordInput struct {
	Password  string `json:"password" binding:"required"`
	Password2 string `json:"password2" binding:"required,eqfield=Password"`
}

// AuthController serves account registration and the token based flows.
type AuthController struct {
	store  *repository.Store
	signer *utils.TokenSigner
	mailer Mailer
}

func NewAuthController(store *repository.Store, signer *utils.TokenSigner, mailer Mailer) *AuthController {
	return &AuthController{store: store, signer: signer, mailer: mailer}
}

func userJSON(user *models.User) gin.H {
	return gin.H{
		"id":        user.ID,
		"username":  user.Username,
		"email":     user.Email,
		"confirmed": user.Confirmed,
		"avatar":    user.GravatarURL(64),
	}
}

func (a *AuthController) sendConfirmation(user *models.User) error {
	token, err := a.signer.Sign(user.ID, utils.PurposeConfirm, "", 0)
	if err != nil {
		return err
	}
	a.mailer.SendNotification("Account confirmation", user.Email, notify.TemplateAccountConfirmation, notify.Data{
		Username: user.Username,
		Token:    token,
		Link:     "/api/auth/confirm/" + token,
	})
	return nil
}

// Register godoc
// @Summary Register a new user
// @Description Creates an account and mails a confirmation token
// @Tags auth
// @Accept json
// @Produce json
// @Param user body RegisterInput true "User Registration"
// @Success 201 {object} map[string]interface{} "User registered successfully"
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 500 {object} map[string]string "Server error"
// @Router /api/auth/register [post]
func (a *AuthController) Register(c *gin.Context) {
	var input RegisterInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !models.UsernamePattern.MatchString(input.Username) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username should contain only letters, numbers, dots and underscores."})
		return
	}

	ctx := c.Request.Context()
	taken, err := a.store.UsernameTaken(ctx, input.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		return
	}
	if taken {
		c.JSON(http.StatusBadRequest, gin.H{"error": "User with such username already exists."})
		return
	}
	if taken, err = a.store.EmailTaken(ctx, input.Email); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		return
	}
	if taken {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email already in use."})
		return
	}

	user := &models.User{
		Username: input.Username,
		Email:    input.Email,
		Password: input.Password,
	}
	if err := a.store.CreateUser(ctx, user); err != nil {
		abortWithStoreError(c, err, "User")
		return
	}

	if err := a.sendConfirmation(user); err != nil {
		log.Printf("Error signing confirmation token for user %d: %v", user.ID, err)
	}

	token, err := a.signer.GenerateToken(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Thank you for creating account!",
		"user":    userJSON(user),
		"token":   token,
	})
}

// Login godoc
// @Summary Log in
// @Description Authenticates a user by username and password and returns an access token
// @Tags auth
// @Accept json
// @Produce json
// @Param credentials body LoginInput true "User Login"
// @Success 200 {object} map[string]interface{} "Login successful"
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 401 {object} map[string]string "Invalid credentials"
// @Router /api/auth/login [post]
func (a *AuthController) Login(c *gin.Context) {
	var input LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := a.store.FindUserByUsername(c.Request.Context(), input.Username)
	if err != nil || user.ValidatePassword(input.Password) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
		return
	}

	token, err := a.signer.GenerateToken(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"user":    userJSON(user),
		"token":   token,
	})
}

// Logout godoc
// @Summary Log out
// @Description Access tokens are stateless; the client discards its token
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]string
// @Router /api/auth/logout [post]
func (a *AuthController) Logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "You have been logged out."})
}

// Unconfirmed godoc
// @Summary Confirmation status
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Router /api/auth/unconfirmed [get]
func (a *AuthController) Unconfirmed(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user.Confirmed {
		c.JSON(http.StatusOK, gin.H{"confirmed": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"confirmed": false,
		"message":   "You have not confirmed your account yet. Check your inbox or request a new confirmation email.",
	})
}

// Confirm godoc
// @Summary Confirm account
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Param token path string true "Confirmation token"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string "Invalid token"
// @Router /api/auth/confirm/{token} [get]
func (a *AuthController) Confirm(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user.Confirmed {
		c.JSON(http.StatusOK, gin.H{"message": "Your account is already confirmed."})
		return
	}

	claims, ok := a.signer.Verify(c.Param("token"), utils.PurposeConfirm)
	if !ok || claims.UserID != user.ID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "The confirmation link is invalid or has expired."})
		return
	}

	user.Confirmed = true
	if err := a.store.UpdateUser(c.Request.Context(), user); err != nil {
		abortWithStoreError(c, err, "User")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "You have confirmed your account. Thanks!"})
}

// Resend godoc
// @Summary Resend confirmation email
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]string
// @Router /api/auth/resend [post]
func (a *AuthController) Resend(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user.Confirmed {
		c.JSON(http.StatusOK, gin.H{"message": "Your account is already confirmed."})
		return
	}
	if err := a.sendConfirmation(user); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "An email with confirmation token has been sent to you."})
}

// ChangePassword godoc
// @Summary Change password
// @Tags auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param passwords body ChangePasswordInput true "Old and new password"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string "Invalid old password"
// @Router /api/auth/change-password [post]
func (a *AuthController) ChangePassword(c *gin.Context) {
	var input ChangePasswordInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := middleware.CurrentUser(c)
	if err := user.ValidatePassword(input.OldPassword); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid old password."})
		return
	}

	user.Password = input.Password
	if err := a.store.UpdateUser(c.Request.Context(), user); err != nil {
		abortWithStoreError(c, err, "User")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Your password has been changed."})
}

// ChangeEmail godoc
// @Summary Request email change
// @Description Mails a token to the new address; the change happens when it is confirmed
// @Tags auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param email body EmailInput true "New email"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string "Email already in use"
// @Router /api/auth/change-email [post]
func (a *AuthController) ChangeEmail(c *gin.Context) {
	var input EmailInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	taken, err := a.store.EmailTaken(c.Request.Context(), input.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		return
	}
	if taken {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email already in use."})
		return
	}

	user := middleware.CurrentUser(c)
	token, err := a.signer.Sign(user.ID, utils.PurposeEmail, input.Email, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}
	a.mailer.SendNotification("Change email", input.Email, notify.TemplateChangeEmail, notify.Data{
		Username: user.Username,
		Token:    token,
		Link:     "/api/auth/change-email/" + token,
	})
	c.JSON(http.StatusOK, gin.H{"message": "Instruction to change email has been sent to you."})
}

// ConfirmChangeEmail godoc
// @Summary Confirm email change
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Param token path string true "Email change token"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string "Invalid token"
// @Router /api/auth/change-email/{token} [get]
func (a *AuthController) ConfirmChangeEmail(c *gin.Context) {
	user := middleware.CurrentUser(c)
	claims, ok := a.signer.Verify(c.Param("token"), utils.PurposeEmail)
	if !ok || claims.UserID != user.ID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid email change token."})
		return
	}

	user.Email = claims.Email
	if err := a.store.UpdateUser(c.Request.Context(), user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Email already in use."})
			return
		}
		abortWithStoreError(c, err, "User")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Your email successfully has been changed."})
}

// RequestPasswordReset godoc
// @Summary Request password reset
// @Tags auth
// @Accept json
// @Produce json
// @Param email body EmailInput true "Account email"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string "Unknown email"
// @Router /api/auth/reset-password [post]
func (a *AuthController) RequestPasswordReset(c *gin.Context) {
	var input EmailInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := a.store.FindUserByEmail(c.Request.Context(), input.Email)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Account with such email not found."})
		return
	}

	token, err := a.signer.Sign(user.ID, utils.PurposeReset, "", 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}
	a.mailer.SendNotification("Reset password", user.Email, notify.TemplatePasswordReset, notify.Data{
		Username: user.Username,
		Token:    token,
	})
	c.JSON(http.StatusOK, gin.H{"message": "Instruction to reset password has been sent to you."})
}

// ResetPassword godoc
// @Summary Reset password
// @Tags auth
// @Accept json
// @Produce json
// @Param token path string true "Reset token"
// @Param passwords body ResetPasswordInput true "New password"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string "Invalid token"
// @Router /api/auth/reset-password/{token} [post]
func (a *AuthController) ResetPassword(c *gin.Context) {
	var input ResetPasswordInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims, ok := a.signer.Verify(c.Param("token"), utils.PurposeReset)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid reset token."})
		return
	}
	user, err := a.store.FindUserByID(c.Request.Context(), claims.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid reset token."})
		return
	}

	user.Password = input.Password
	if err := a.store.UpdateUser(c.Request.Context(), user); err != nil {
		abortWithStoreError(c, err, "User")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Your password has been changed."})
}
