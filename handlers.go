package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"receiptvault/logger"
	"receiptvault/models"
	"receiptvault/pkg/extract"
	"receiptvault/store"
)

const maxUploadBytes = 10 * 1024 * 1024

func setupRoutes(r *gin.Engine) {
	r.POST("/signup", signupHandler)
	r.POST("/login", loginHandler)
	r.POST("/auth/forgot-password", forgotPasswordHandler)
	r.POST("/webhooks/stripe", stripeWebhookHandler)

	authGroup := r.Group("")
	authGroup.Use(jwtAuthMiddleware())
	authGroup.GET("/me", meHandler)
	authGroup.GET("/receipts", listReceiptsHandler)
	authGroup.POST("/receipts", createReceiptHandler)
	authGroup.PUT("/receipts/:id", updateReceiptHandler)
	authGroup.DELETE("/receipts/:id", deleteReceiptHandler)
	authGroup.POST("/receipts/extract", extractReceiptHandler)
	authGroup.POST("/receipts/email", emailReceiptsHandler)
	authGroup.POST("/stripe/create-checkout-session", createCheckoutSessionHandler)
	authGroup.POST("/stripe/cancel-subscription", cancelSubscriptionHandler)
	authGroup.DELETE("/account", deleteAccountHandler)
}

// respondStoreErr maps the store's error taxonomy onto HTTP statuses.
func respondStoreErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, store.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "already exists"})
	case errors.Is(err, store.ErrQuotaExceeded):
		c.JSON(http.StatusForbidden, gin.H{"error": "Free plan limit reached. Upgrade to Pro for unlimited receipts."})
	case errors.Is(err, store.ErrUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": "backend unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func signupHandler(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}
	u, err := SignupUser(c.Request.Context(), dataStore, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "user already exists"})
			return
		}
		if errors.Is(err, store.ErrUnavailable) {
			respondStoreErr(c, err)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "user created successfully", "userId": u.ID})
}

func loginHandler(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	u, err := AuthenticateUser(c.Request.Context(), dataStore, req.Email, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	token, err := mintToken(u)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "login successful", "token": token})
}

// forgotPasswordHandler always answers the same way so account existence
// is never revealed.
func forgotPasswordHandler(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}
	if _, err := dataStore.GetUserByEmail(c.Request.Context(), req.Email); err == nil {
		logger.Get().Info("password reset requested", zap.String("email", req.Email))
	}
	c.JSON(http.StatusOK, gin.H{"message": "If an account with that email exists, we have sent password reset instructions."})
}

func meHandler(c *gin.Context) {
	u, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, u)
}

func listReceiptsHandler(c *gin.Context) {
	u, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	receipts, err := dataStore.ListReceipts(c.Request.Context(), u.ID)
	if err != nil {
		respondStoreErr(c, err)
		return
	}
	if receipts == nil {
		receipts = []models.Receipt{}
	}
	c.JSON(http.StatusOK, receipts)
}

func createReceiptHandler(c *gin.Context) {
	u, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	var req struct {
		ImageURL string       `json:"image_url"`
		Vendor   string       `json:"vendor"`
		Date     string       `json:"date"`
		Amount   models.Cents `json:"amount"`
		Currency string       `json:"currency"`
		Category string       `json:"category"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r := &models.Receipt{
		ImageURL: req.ImageURL,
		Vendor:   req.Vendor,
		Date:     req.Date,
		Amount:   req.Amount,
		Currency: req.Currency,
		Category: req.Category,
	}
	created, err := store.AddReceipt(c.Request.Context(), dataStore, u.ID, r)
	if err != nil {
		respondStoreErr(c, err)
		return
	}
	// advisory monthly counter, not part of the quota decision
	n := u.ReceiptsThisMonth + 1
	if _, err := dataStore.UpdateUser(c.Request.Context(), u.ID, store.UserUpdate{ReceiptsThisMonth: &n}); err != nil {
		logger.Get().Warn("failed to bump receipt counter", zap.Error(err))
	}
	c.JSON(http.StatusCreated, created)
}

// ownReceipt resolves a receipt id within the caller's own list. A receipt
// that exists but belongs to someone else looks exactly like a missing one.
func ownReceipt(c *gin.Context, userID, receiptID string) (*models.Receipt, bool) {
	receipts, err := dataStore.ListReceipts(c.Request.Context(), userID)
	if err != nil {
		respondStoreErr(c, err)
		return nil, false
	}
	for i := range receipts {
		if receipts[i].ID == receiptID {
			return &receipts[i], true
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "receipt not found"})
	return nil, false
}

func updateReceiptHandler(c *gin.Context) {
	u, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	id := c.Param("id")
	if _, ok := ownReceipt(c, u.ID, id); !ok {
		return
	}
	var req struct {
		ImageURL *string       `json:"image_url"`
		Vendor   *string       `json:"vendor"`
		Date     *string       `json:"date"`
		Amount   *models.Cents `json:"amount"`
		Currency *string       `json:"currency"`
		Category *string       `json:"category"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	updated, err := dataStore.UpdateReceipt(c.Request.Context(), id, store.ReceiptUpdate{
		ImageURL: req.ImageURL,
		Vendor:   req.Vendor,
		Date:     req.Date,
		Amount:   req.Amount,
		Currency: req.Currency,
		Category: req.Category,
	})
	if err != nil {
		respondStoreErr(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func deleteReceiptHandler(c *gin.Context) {
	u, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	id := c.Param("id")
	if _, ok := ownReceipt(c, u.ID, id); !ok {
		return
	}
	if err := dataStore.DeleteReceipt(c.Request.Context(), id); err != nil {
		respondStoreErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "receipt deleted successfully"})
}

// extractReceiptHandler runs the vision extraction and returns the fields
// without persisting anything; the client decides whether to save.
func extractReceiptHandler(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file provided"})
		return
	}
	if file.Size > maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file too large (max 10MB)"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read file"})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read file"})
		return
	}
	mediaType := file.Header.Get("Content-Type")
	if mediaType == "" {
		mediaType = "image/jpeg"
	}
	fields, err := extractor.Extract(c.Request.Context(), data, mediaType)
	if err != nil {
		if errors.Is(err, extract.ErrNoResponse) {
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to process receipt"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process receipt"})
		return
	}
	c.JSON(http.StatusOK, fields)
}

// emailReceiptsHandler builds a CSV of the caller's receipts and hands back
// a mailto link; actual delivery is left to the user's mail client.
func emailReceiptsHandler(c *gin.Context) {
	u, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	receipts, err := dataStore.ListReceipts(c.Request.Context(), u.ID)
	if err != nil {
		respondStoreErr(c, err)
		return
	}
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	_ = w.Write([]string{"Vendor", "Date", "Amount", "Currency", "Category"})
	for _, r := range receipts {
		_ = w.Write([]string{r.Vendor, r.Date, fmt.Sprintf("%.2f", r.Amount.Float()), r.Currency, r.Category})
	}
	w.Flush()

	subject := "Receipt Export - " + time.Now().Format("2006-01-02")
	body := "Here are your receipts:\n\n" + sb.String()
	mailto := "mailto:" + u.Email + "?subject=" + url.QueryEscape(subject) + "&body=" + url.QueryEscape(body)
	c.JSON(http.StatusOK, gin.H{
		"mailtoLink": mailto,
		"message":    "Email client will open with your receipt data",
	})
}

func deleteAccountHandler(c *gin.Context) {
	u, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	// cascades to the user's receipts in both backends
	if err := dataStore.DeleteUser(c.Request.Context(), u.ID); err != nil {
		respondStoreErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "account deleted successfully"})
}
