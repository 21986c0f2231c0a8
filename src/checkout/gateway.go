package checkout

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"

	"tbs/src/lib"
)

var (
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrVerificationFailed = errors.New("payment verification failed")
)

// Gateway is the slice of the payment provider the coordinator needs:
// creating remote orders and checking callback signatures. Everything else
// the provider offers stays outside the pipeline.
type Gateway interface {
	CreateOrder(ctx context.Context, amount int64, currency string, receipt string, notes map[string]any) (string, error)
	VerifyCallback(orderRef, paymentRef, signature string) error
	VerifyWebhook(body []byte, signature string) error
}

type RazorpayGateway struct {
	keySecret     string
	webhookSecret string
}

func NewRazorpayGateway() *RazorpayGateway {
	return &RazorpayGateway{
		keySecret:     os.Getenv("RAZORPAY_KEY_SECRET"),
		webhookSecret: os.Getenv("RAZORPAY_WEBHOOK_SECRET"),
	}
}

func (g *RazorpayGateway) CreateOrder(ctx context.Context, amount int64, currency string, receipt string, notes map[string]any) (string, error) {
	type result struct {
		id  string
		err error
	}
	ch := make(chan result, 1)
	go func() {
		rc := lib.GetRazorpayClient()
		data := map[string]interface{}{
			"amount":   amount,
			"currency": currency,
			"receipt":  receipt,
		}
		if len(notes) > 0 {
			data["notes"] = notes
		}
		order, err := rc.Order.Create(data, nil)
		if err != nil {
			ch <- result{err: err}
			return
		}
		id, _ := order["id"].(string)
		if id == "" {
			ch <- result{err: errors.New("gateway returned no order id")}
			return
		}
		ch <- result{id: id}
	}()
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %s", ErrGatewayUnavailable, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			log.Printf("Failed to create gateway order: %s\n", r.err.Error())
			return "", fmt.Errorf("%w: %s", ErrGatewayUnavailable, r.err)
		}
		return r.id, nil
	}
}

// VerifyCallback checks the signature the gateway attaches to a successful
// checkout: HMAC-SHA256 over "orderRef|paymentRef" with the key secret.
// Comparison is constant time.
func (g *RazorpayGateway) VerifyCallback(orderRef, paymentRef, signature string) error {
	expected := signPayload([]byte(orderRef+"|"+paymentRef), g.keySecret)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) != 1 {
		return ErrVerificationFailed
	}
	return nil
}

// VerifyWebhook checks the X-Razorpay-Signature header against the raw
// request body using the webhook secret.
func (g *RazorpayGateway) VerifyWebhook(body []byte, signature string) error {
	expected := signPayload(body, g.webhookSecret)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) != 1 {
		return ErrVerificationFailed
	}
	return nil
}

func signPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
