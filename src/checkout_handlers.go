package main

import (
	"errors"
	"io"
	"log"
	"net/http"

	"tbs/src/checkout"
	"tbs/src/inventory"
	"tbs/src/middlewares"
	"tbs/src/pricing"
	"tbs/src/types"
	"tbs/src/utils"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
)

func checkoutHandlers(g *gin.RouterGroup, coord *checkout.Coordinator) *gin.RouterGroup {
	g.
		POST("/checkout/price", func(ctx *gin.Context) {
			var body types.PriceSelectionRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			userId := middlewares.UserIDFromContext(ctx)
			quote, err := coord.Price(ctx, body.EventID, body.Items, body.CouponCode, userId)
			if err != nil {
				if errors.Is(err, pricing.ErrInvalidSelection) {
					ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
					return
				}
				log.Printf("Error pricing selection: %s\n", err.Error())
				ctx.Status(http.StatusInternalServerError)
				return
			}
			resp := gin.H{
				"breakdown": quote.Breakdown,
				"currency":  quote.Currency,
			}
			if quote.Coupon != nil {
				resp["coupon"] = quote.Coupon.Code
			}
			if quote.CouponErr != nil {
				resp["coupon_error"] = quote.CouponErr.Error()
			}
			ctx.JSON(http.StatusOK, resp)
		}).
		POST("/checkout", func(ctx *gin.Context) {
			var body types.CreateCheckoutRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			userId := middlewares.UserIDFromContext(ctx)
			order, quote, err := coord.Begin(ctx, body, userId)
			if err != nil {
				switch {
				case errors.Is(err, pricing.ErrInvalidSelection),
					errors.Is(err, checkout.ErrBuyerIdentity):
					ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				case errors.Is(err, checkout.ErrGatewayUnavailable):
					ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "payment gateway unavailable, try again"})
				default:
					log.Printf("Error creating checkout: %s\n", err.Error())
					ctx.Status(http.StatusInternalServerError)
				}
				return
			}
			go utils.CacheOrder(order.OrderRef, order.ID.String(), coord.OrderTTL)
			ctx.JSON(http.StatusCreated, gin.H{
				"order":      order.OrderRef,
				"amount":     order.Amount,
				"currency":   order.Currency,
				"breakdown":  quote.Breakdown,
				"expires_at": order.ExpiresAt,
			})
		}).
		POST("/checkout/confirm", func(ctx *gin.Context) {
			var body types.PaymentCallbackRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			booking, err := coord.Commit(ctx, body.OrderID, body.PaymentID, body.Signature)
			if err != nil {
				respondCommitError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"booking": booking})
		})
	return g
}

func respondCommitError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, checkout.ErrVerificationFailed):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "payment verification failed"})
	case errors.Is(err, checkout.ErrOrderNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
	case errors.Is(err, checkout.ErrOrderClosed),
		errors.Is(err, checkout.ErrCommitConflict),
		errors.Is(err, checkout.ErrCouponRevoked),
		errors.Is(err, inventory.ErrOversold):
		ctx.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		log.Printf("Error committing booking: %s\n", err.Error())
		ctx.Status(http.StatusInternalServerError)
	}
}

func paymentWebhookRoute(g *gin.Engine, coord *checkout.Coordinator) *gin.RouterGroup {
	apiv1 := apiv1Group(g)
	apiv1.POST("/webhook/razorpay", func(ctx *gin.Context) {
		payload, err := io.ReadAll(ctx.Request.Body)
		if err != nil {
			log.Printf("Error reading request body: %s\n", err.Error())
			ctx.Status(http.StatusServiceUnavailable)
			return
		}
		if err := coord.Gateway.VerifyWebhook(payload, ctx.GetHeader("X-Razorpay-Signature")); err != nil {
			log.Printf("Error verifying webhook signature: %s\n", err.Error())
			ctx.Status(http.StatusBadRequest)
			return
		}
		event := gjson.GetBytes(payload, "event").String()
		log.Printf("[RazorpayEvent] %s\n", event)
		switch event {
		case "payment.captured":
			entity := gjson.GetBytes(payload, "payload.payment.entity")
			orderRef := entity.Get("order_id").String()
			paymentRef := entity.Get("id").String()
			if orderRef == "" || paymentRef == "" {
				ctx.Status(http.StatusBadRequest)
				return
			}
			if orderId, ok := utils.GetCachedOrder(orderRef); ok {
				log.Printf("Webhook for cached order %s (%s)\n", orderRef, orderId)
			}
			if _, err := coord.CommitVerified(ctx, orderRef, paymentRef, ""); err != nil {
				respondCommitError(ctx, err)
				return
			}
		case "payment.failed":
			entity := gjson.GetBytes(payload, "payload.payment.entity")
			log.Printf("Payment %s failed for order %s: %s\n",
				entity.Get("id").String(),
				entity.Get("order_id").String(),
				entity.Get("error_description").String())
		}
		ctx.Status(http.StatusOK)
	})
	return apiv1
}
