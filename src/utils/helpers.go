package utils

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"tbs/src/config"
	"tbs/src/coupons"
	"tbs/src/db"
	"tbs/src/lib"
	"tbs/src/models"
	"tbs/src/types"

	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

func CreateNewEvent(params *types.CreateEventRequestBody, creatorId uint) (uint, error) {
	dateTime, err := time.Parse(config.TIME_PARSE_FORMAT, params.DateTime)
	if err != nil {
		log.Printf("Error parsing date_time: %s\n", err.Error())
		return 0, err
	}
	dateTime = time.Date(
		dateTime.Year(),
		dateTime.Month(),
		dateTime.Day(),
		dateTime.Hour(),
		dateTime.Minute(),
		0,
		0,
		dateTime.Location(),
	)

	event := models.Event{
		Title:     params.Title,
		Name:      params.Name,
		Slug:      slug.Make(params.Name),
		About:     &params.About,
		Location:  params.Location,
		DateTime:  dateTime,
		Deadline:  dateTime,
		CreatedBy: creatorId,
		Status:    types.EVENT_DRAFT,
	}

	conn := db.GetDb()
	err = conn.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Event{}).Where("slug = ?", event.Slug).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			event.Slug = fmt.Sprintf("%s-%d", event.Slug, time.Now().Unix())
		}
		return tx.Create(&event).Error
	})
	if err != nil {
		log.Printf("Error creating Event: %s\n", err.Error())
		return 0, err
	}
	return event.ID, nil
}

func CreateNewTicket(params *types.CreateTicketRequestBody) (uint, error) {
	conn := db.GetDb()
	ticket := models.Ticket{
		Tier:     params.Tier,
		Currency: params.Currency,
		Price:    params.Price,
		Capacity: params.Capacity,
		EventID:  params.EventID,
		Status:   types.TICKET_DRAFT,
	}
	err := conn.Transaction(func(tx *gorm.DB) error {
		var event models.Event
		if err := tx.First(&event, params.EventID).Error; err != nil {
			return err
		}
		if event.Status == types.EVENT_ARCHIVED || event.Status == types.EVENT_COMPLETED {
			return errors.New("event is no longer selling tickets")
		}
		return tx.Create(&ticket).Error
	})
	if err != nil {
		log.Printf("Error creating Ticket: %s\n", err.Error())
		return 0, err
	}
	return ticket.ID, nil
}

func GetTicketsForEvent(id uint) ([]*models.Ticket, error) {
	conn := db.GetDb()
	var tickets []*models.Ticket
	err := conn.
		Where("event_id = ?", id).
		Order("price asc").
		Find(&tickets).Error
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

func PublishEvent(id uint) error {
	conn := db.GetDb()
	res := conn.Model(&models.Event{}).
		Where("id = ? AND status = ?", id, types.EVENT_DRAFT).
		Update("status", types.EVENT_OPEN)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.New("event cannot be published from its current status")
	}
	return nil
}

func PublishTicket(id uint) error {
	conn := db.GetDb()
	res := conn.Model(&models.Ticket{}).
		Where("id = ? AND status = ?", id, types.TICKET_DRAFT).
		Update("status", types.TICKET_OPEN)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.New("ticket cannot be published from its current status")
	}
	return nil
}

func CloseTicket(id uint) error {
	conn := db.GetDb()
	res := conn.Model(&models.Ticket{}).
		Where("id = ? AND status = ?", id, types.TICKET_OPEN).
		Update("status", types.TICKET_CLOSED)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.New("ticket is not open")
	}
	return nil
}

func CreateNewCoupon(params *types.CreateCouponRequestBody, creatorId uint) (uint, error) {
	validFrom, err := time.Parse(config.TIME_PARSE_FORMAT, params.ValidFrom)
	if err != nil {
		log.Printf("Error parsing valid_from: %s\n", err.Error())
		return 0, err
	}
	validUntil, err := time.Parse(config.TIME_PARSE_FORMAT, params.ValidUntil)
	if err != nil {
		log.Printf("Error parsing valid_until: %s\n", err.Error())
		return 0, err
	}
	if !validUntil.After(validFrom) {
		return 0, errors.New("valid_until must be after valid_from")
	}
	coupon := models.Coupon{
		Code:              params.Code,
		Type:              types.CouponType(params.Type),
		Value:             params.Value,
		MaxDiscount:       params.MaxDiscount,
		ValidFrom:         validFrom,
		ValidUntil:        validUntil,
		MaxUses:           params.MaxUses,
		MaxUsesPerUser:    params.MaxUsesPerUser,
		MinPurchaseAmount: params.MinPurchaseAmount,
		FirstTimeOnly:     params.FirstTimeOnly,
		Active:            true,
		CreatedBy:         creatorId,
	}
	coupon.Code = coupons.NormalizeCode(coupon.Code)
	conn := db.GetDb()
	if err := conn.Create(&coupon).Error; err != nil {
		log.Printf("Error creating Coupon: %s\n", err.Error())
		return 0, err
	}
	return coupon.ID, nil
}

// CacheOrder mirrors the order ref to its payment order id in Redis so the
// webhook handler can resolve callbacks without a table scan.
func CacheOrder(orderRef string, orderId string, ttl time.Duration) {
	rdb := lib.GetRedisClient()
	if rdb == nil {
		return
	}
	key := fmt.Sprintf("order:%s", orderRef)
	if err := rdb.SetEx(context.Background(), key, orderId, ttl).Err(); err != nil {
		log.Printf("Failed to cache order %s: %s\n", orderRef, err.Error())
	}
}

func GetCachedOrder(orderRef string) (string, bool) {
	rdb := lib.GetRedisClient()
	if rdb == nil {
		return "", false
	}
	key := fmt.Sprintf("order:%s", orderRef)
	val, err := rdb.Get(context.Background(), key).Result()
	if err != nil {
		return "", false
	}
	return val, true
}
