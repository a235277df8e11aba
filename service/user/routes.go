package user

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/studysphere/studysphere-server/cmd/models"
	"github.com/studysphere/studysphere-server/cmd/utils"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/gomail.v2"
	"gorm.io/gorm"

	"github.com/golang-jwt/jwt/v4"
)

type Handler struct {
	db       *gorm.DB
	validate *validator.Validate
}

func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db, validate: validator.New()}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/register", h.HandleRegister).Methods("POST")
	router.HandleFunc("/auth/login", h.handleLogin).Methods("POST")
	router.HandleFunc("/auth/refresh", h.handleRefreshToken).Methods("POST")
	router.HandleFunc("/auth/password-reset/request", h.handlePasswordResetRequest).Methods("POST")
	router.HandleFunc("/auth/password-reset/verify", h.handleVerifyResetToken).Methods("POST")
	router.HandleFunc("/auth/password-reset/{userId}", h.handlePasswordReset).Methods("POST")

	router.HandleFunc("/users/{id}", h.GetUser).Methods("GET")
	router.HandleFunc("/users/{id}", utils.AuthMiddleware(h.UpdateUser)).Methods("PUT")
	router.HandleFunc("/users/{id}", utils.AuthMiddleware(h.DeleteUser)).Methods("DELETE")
}

type registerRequest struct {
	FullName          string `json:"full_name" validate:"required,min=1,max=255"`
	Email             string `json:"email" validate:"required,email"`
	Password          string `json:"password" validate:"required,min=6"`
	PreferredLanguage string `json:"preferred_language" validate:"omitempty,bcp47_language_tag"`
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, fmt.Sprintf("Validation failed: %v", err), http.StatusBadRequest)
		return
	}

	var existing models.User
	if err := h.db.Where("email = ?", req.Email).First(&existing).Error; err == nil {
		http.Error(w, "Email already registered", http.StatusConflict)
		return
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "Error hashing password", http.StatusInternalServerError)
		return
	}

	language := req.PreferredLanguage
	if language == "" {
		language = "en"
	}

	user := models.User{
		FullName:          req.FullName,
		Email:             req.Email,
		PasswordHash:      string(passwordHash),
		PreferredLanguage: language,
	}

	if err := h.db.Create(&user).Error; err != nil {
		http.Error(w, "Error creating user", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Registration successful",
		"user_id": user.ID,
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var loginRequest struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&loginRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var user models.User
	result := h.db.Where("email = ?", loginRequest.Email).First(&user)
	if result.Error != nil {
		http.Error(w, "User not found", http.StatusUnauthorized)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(loginRequest.Password)); err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	accessToken, err := generateJWT(user.ID, 60*24)
	if err != nil {
		http.Error(w, "Error generating access token", http.StatusInternalServerError)
		return
	}

	refreshToken, err := generateRefreshToken(user.ID)
	if err != nil {
		http.Error(w, "Error generating refresh token", http.StatusInternalServerError)
		return
	}

	if err := saveRefreshToken(h.db, user.ID, refreshToken); err != nil {
		http.Error(w, "Error saving refresh token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":            "Login successful",
		"access_token":       accessToken,
		"refresh_token":      refreshToken,
		"user_id":            user.ID,
		"preferred_language": user.PreferredLanguage,
	})
}

func (h *Handler) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	var refreshRequest struct {
		RefreshToken string `json:"refresh_token"`
	}

	if err := json.NewDecoder(r.Body).Decode(&refreshRequest); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	tx := h.db.Begin()

	var stored models.RefreshToken
	if err := tx.Where("token = ?", refreshRequest.RefreshToken).First(&stored).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Invalid refresh token", http.StatusUnauthorized)
		return
	}

	if stored.ExpiresAt.Before(time.Now()) {
		tx.Rollback()
		http.Error(w, "Refresh token expired", http.StatusUnauthorized)
		return
	}

	newAccessToken, err := generateJWT(stored.UserID, 60*24)
	if err != nil {
		tx.Rollback()
		http.Error(w, "Error generating new token", http.StatusInternalServerError)
		return
	}

	// Rotate: the presented token is invalidated and replaced.
	newRefreshToken, err := generateRefreshToken(stored.UserID)
	if err != nil {
		tx.Rollback()
		http.Error(w, "Error generating refresh token", http.StatusInternalServerError)
		return
	}

	if err := tx.Delete(&stored).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error rotating refresh token", http.StatusInternalServerError)
		return
	}
	if err := tx.Create(&models.RefreshToken{
		UserID:    stored.UserID,
		Token:     newRefreshToken,
		ExpiresAt: time.Now().Add(30 * 24 * time.Hour),
	}).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error saving refresh token", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"access_token":  newAccessToken,
		"refresh_token": newRefreshToken,
	})
}

var jwtSecretKey = []byte(os.Getenv("SECRET_KEY"))

func generateJWT(userID uint, expirationMinutes int) (string, error) {
	claims := &jwt.RegisteredClaims{
		Subject:   fmt.Sprint(userID),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute * time.Duration(expirationMinutes))),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecretKey)
}

func generateRefreshToken(userID uint) (string, error) {
	b := make([]byte, 32)
	_, err := rand.Read(b)
	if err != nil {
		return "", err
	}

	mac := hmac.New(sha256.New, []byte(os.Getenv("SECRET_KEY")))
	mac.Write([]byte(fmt.Sprintf("%d", userID)))
	mac.Write(b)

	signature := mac.Sum(nil)
	return fmt.Sprintf("%d_%x_%x", userID, b, signature), nil
}

func saveRefreshToken(db *gorm.DB, userID uint, refreshToken string) error {
	return db.Create(&models.RefreshToken{
		UserID:    userID,
		Token:     refreshToken,
		ExpiresAt: time.Now().Add(30 * 24 * time.Hour),
	}).Error
}

func (h *Handler) handlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	var resetRequest struct {
		Email string `json:"email"`
	}

	if err := json.NewDecoder(r.Body).Decode(&resetRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if resetRequest.Email == "" {
		http.Error(w, "Email is required", http.StatusBadRequest)
		return
	}

	// Keep response vague so the endpoint does not reveal which emails exist.
	vagueResponse := map[string]string{
		"message": "If an account exists, a reset code will be sent to your email",
	}

	var user models.User
	if err := h.db.Where("email = ?", resetRequest.Email).First(&user).Error; err != nil {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(vagueResponse)
		return
	}

	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		http.Error(w, "Error generating reset token", http.StatusInternalServerError)
		return
	}
	resetToken := fmt.Sprintf("%06d", n.Int64())

	tx := h.db.Begin()

	if err := tx.Where("user_id = ?", user.ID).Delete(&models.PasswordResetToken{}).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error processing reset request", http.StatusInternalServerError)
		return
	}

	passwordResetToken := models.PasswordResetToken{
		UserID:    user.ID,
		Token:     resetToken,
		ExpiresAt: time.Now().Add(5 * time.Minute),
	}

	if err := tx.Create(&passwordResetToken).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error creating reset token", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Error processing reset request", http.StatusInternalServerError)
		return
	}

	if err := sendResetEmail(user.Email, resetToken); err != nil {
		http.Error(w, "Error sending email", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(vagueResponse)
}

func sendResetEmail(email, code string) error {
	smtpHost := os.Getenv("SMTP_HOST")
	smtpPort := os.Getenv("SMTP_PORT")
	smtpUser := os.Getenv("SMTP_USER")
	smtpPass := os.Getenv("SMTP_PASS")

	m := gomail.NewMessage()
	m.SetHeader("From", smtpUser)
	m.SetHeader("To", email)
	m.SetHeader("Subject", "Password Reset Code")
	m.SetBody("text/plain", fmt.Sprintf("Your password reset code is: %s. Ignore this email if you did not request a reset.", code))

	port, err := strconv.Atoi(smtpPort)
	if err != nil {
		return fmt.Errorf("invalid SMTP port: %v", err)
	}
	d := gomail.NewDialer(smtpHost, port, smtpUser, smtpPass)

	return d.DialAndSend(m)
}

func (h *Handler) handleVerifyResetToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Token string `json:"token"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var user models.User
	if err := h.db.Where("email = ?", req.Email).First(&user).Error; err != nil {
		http.Error(w, "Invalid email or token", http.StatusBadRequest)
		return
	}

	var resetToken models.PasswordResetToken
	if err := h.db.Where("user_id = ? AND token = ? AND used = ?", user.ID, req.Token, false).
		First(&resetToken).Error; err != nil {
		http.Error(w, "Invalid email or token", http.StatusBadRequest)
		return
	}

	if time.Now().After(resetToken.ExpiresAt) {
		http.Error(w, "Token expired", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Token is valid",
		"user_id": user.ID,
	})
}

func (h *Handler) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, err := strconv.ParseUint(vars["userId"], 10, 32)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	var resetRequest struct {
		Password string `json:"password"`
		Token    string `json:"token"`
	}

	if err := json.NewDecoder(r.Body).Decode(&resetRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if len(resetRequest.Password) < 6 {
		http.Error(w, "Password must be at least 6 characters long", http.StatusBadRequest)
		return
	}

	tx := h.db.Begin()

	var user models.User
	if err := tx.First(&user, userID).Error; err != nil {
		tx.Rollback()
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	var resetToken models.PasswordResetToken
	if err := tx.Where("user_id = ? AND token = ? AND used = ?", user.ID, resetRequest.Token, false).
		First(&resetToken).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Invalid reset token", http.StatusBadRequest)
		return
	}
	if time.Now().After(resetToken.ExpiresAt) {
		tx.Rollback()
		http.Error(w, "Token expired", http.StatusBadRequest)
		return
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(resetRequest.Password), bcrypt.DefaultCost)
	if err != nil {
		tx.Rollback()
		http.Error(w, "Error hashing password", http.StatusInternalServerError)
		return
	}

	user.PasswordHash = string(passwordHash)
	if err := tx.Save(&user).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error updating password", http.StatusInternalServerError)
		return
	}

	resetToken.Used = true
	if err := tx.Save(&resetToken).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error invalidating reset token", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Error processing password reset", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Password reset successful",
	})
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

type updateUserRequest struct {
	FullName          string `json:"full_name" validate:"omitempty,min=1,max=255"`
	Bio               string `json:"bio" validate:"omitempty,max=2000"`
	AvatarURL         string `json:"avatar_url" validate:"omitempty,uri"`
	PreferredLanguage string `json:"preferred_language" validate:"omitempty,bcp47_language_tag"`
}

// UpdateUser updates the authenticated user's profile, including the
// preferred language used by the client-side translation cache.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	authID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	userID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}
	if uint(userID) != authID {
		http.Error(w, "Cannot update another user's profile", http.StatusForbidden)
		return
	}

	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, fmt.Sprintf("Validation failed: %v", err), http.StatusBadRequest)
		return
	}

	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	if req.FullName != "" {
		user.FullName = req.FullName
	}
	if req.Bio != "" {
		user.Bio = req.Bio
	}
	if req.AvatarURL != "" {
		user.AvatarURL = req.AvatarURL
	}
	if req.PreferredLanguage != "" {
		user.PreferredLanguage = req.PreferredLanguage
	}

	if err := h.db.Save(&user).Error; err != nil {
		http.Error(w, "Error updating user", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	authID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	userID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}
	if uint(userID) != authID {
		http.Error(w, "Cannot delete another user", http.StatusForbidden)
		return
	}

	tx := h.db.Begin()

	if err := tx.Where("user_id = ?", userID).Delete(&models.GroupMembership{}).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error deleting memberships", http.StatusInternalServerError)
		return
	}
	if err := tx.Where("user_id = ?", userID).Delete(&models.RefreshToken{}).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error deleting refresh tokens", http.StatusInternalServerError)
		return
	}
	if err := tx.Delete(&models.User{}, userID).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error deleting user", http.StatusInternalServerError)
		return
	}

	tx.Commit()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "User deleted successfully",
	})
}
