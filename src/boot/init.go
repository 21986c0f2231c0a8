package boot

import (
	"context"
	"log"
	"time"

	"tbs/src/checkout"
	"tbs/src/db"
	"tbs/src/lib"
	"tbs/src/models"

	"gorm.io/gorm"
)

func InitDb() *gorm.DB {
	conn := db.GetDb()

	err := conn.AutoMigrate(
		&models.User{},
		&models.Event{},
		&models.Ticket{},
		&models.TicketHold{},
		&models.Coupon{},
		&models.CouponRedemption{},
		&models.PaymentOrder{},
		&models.Payment{},
		&models.Booking{},
		&models.BookingItem{},
	)
	if err != nil {
		log.Fatalf("error migration: %s", err.Error())
	}

	return conn
}

// InitScheduler starts the background sweep that expires abandoned payment
// orders and returns expired, uncommitted ticket holds to capacity.
func InitScheduler(coord *checkout.Coordinator) {
	sched, err := lib.GetScheduler()
	if err != nil {
		log.Println("An error has occurred. Check logs for info")
		return
	}
	id, err := lib.CreateCronJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := coord.SweepExpiredOrders(ctx); err != nil {
			log.Printf("Error sweeping expired orders: %s\n", err.Error())
		}
	}, time.Minute)
	if err != nil {
		log.Printf("Error scheduling sweep job: %s\n", err.Error())
		return
	}
	log.Printf("Scheduled order sweep job: %s\n", *id)
	sched.Start()
}
