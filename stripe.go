package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"

	"receiptvault/logger"
	"receiptvault/models"
	"receiptvault/store"
)

// demoCheckoutURL is returned when Stripe is not configured so the upgrade
// flow stays clickable in development.
const demoCheckoutURL = "https://billing.stripe.com/p/demo/test_receiptvault"

func createCheckoutSessionHandler(c *gin.Context) {
	u, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	var req struct {
		PriceID string `json:"priceId"`
	}
	_ = c.ShouldBindJSON(&req)
	priceID := req.PriceID
	if priceID == "" {
		priceID = cfg.StripePriceID
	}

	if cfg.StripeSecretKey == "" {
		logger.Get().Info("stripe not configured, returning demo checkout")
		c.JSON(http.StatusOK, gin.H{
			"url":     demoCheckoutURL,
			"message": "Demo mode - no actual payment will be processed",
		})
		return
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:    stripe.String(cfg.AppURL + "/dashboard?success=true"),
		CancelURL:     stripe.String(cfg.AppURL + "/settings?canceled=true"),
		CustomerEmail: stripe.String(u.Email),
	}
	params.AddMetadata("userId", u.ID)

	s, err := session.New(params)
	if err != nil {
		logger.Get().Error("stripe checkout", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create checkout session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": s.URL})
}

func cancelSubscriptionHandler(c *gin.Context) {
	u, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	free := models.TierFree
	zero := 0
	if _, err := dataStore.UpdateUser(c.Request.Context(), u.ID, store.UserUpdate{
		SubscriptionTier:  &free,
		ReceiptsThisMonth: &zero,
	}); err != nil {
		respondStoreErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "subscription cancelled successfully"})
}

// stripeWebhookHandler applies verified billing events to subscription
// state. Signature verification happens here at the boundary; the tier
// change itself is an ordinary facade update.
func stripeWebhookHandler(c *gin.Context) {
	if cfg.StripeSecretKey == "" || cfg.StripeWebhookSecret == "" {
		logger.Get().Info("stripe not configured, webhook ignored")
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	b, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	event, err := webhook.ConstructEvent(b, c.Request.Header.Get("Stripe-Signature"), cfg.StripeWebhookSecret)
	if err != nil {
		logger.Get().Warn("webhook signature verification failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated":
		if err := setTierFromEvent(c, event, models.TierPro); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook handler failed"})
			return
		}
	case "customer.subscription.deleted":
		if err := setTierFromEvent(c, event, models.TierFree); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook handler failed"})
			return
		}
	case "invoice.payment_failed":
		logger.Get().Warn("invoice payment failed", zap.String("event", string(event.ID)))
	default:
		logger.Get().Debug("unhandled stripe event", zap.String("type", string(event.Type)))
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// setTierFromEvent reads the user id out of the subscription metadata and
// updates the tier. Events without our metadata are acknowledged and
// skipped rather than retried forever by Stripe.
func setTierFromEvent(c *gin.Context, event stripe.Event, tier string) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		logger.Get().Warn("unparseable subscription event", zap.Error(err))
		return nil
	}
	userID := sub.Metadata["userId"]
	if userID == "" {
		logger.Get().Warn("subscription event without userId metadata", zap.String("event", string(event.ID)))
		return nil
	}
	if _, err := dataStore.UpdateUser(c.Request.Context(), userID, store.UserUpdate{SubscriptionTier: &tier}); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logger.Get().Warn("subscription event for unknown user", zap.String("user_id", userID))
			return nil
		}
		logger.Get().Error("failed to apply subscription event", zap.Error(err), zap.String("user_id", userID))
		return err
	}
	logger.Get().Info("subscription tier updated", zap.String("user_id", userID), zap.String("tier", tier))
	return nil
}
