package main

import (
	"log"
	"net/http"

	"tbs/src/db"
	"tbs/src/models"
	"tbs/src/types"

	"github.com/gin-gonic/gin"
)

func bookingHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		GET("/bookings", func(ctx *gin.Context) {
			userId := ctx.GetUint("id")
			var bookings []models.Booking
			conn := db.GetDb()
			if err := conn.
				Where("user_id = ?", userId).
				Preload("Items").
				Preload("Event").
				Order("created_at desc").
				Find(&bookings).Error; err != nil {
				log.Printf("Error retrieving Bookings: %s\n", err.Error())
				ctx.Status(http.StatusBadRequest)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": bookings})
		}).
		GET("/bookings/:id", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			userId := ctx.GetUint("id")
			var booking models.Booking
			conn := db.GetDb()
			if err := conn.
				Where("id = ? AND user_id = ?", params.ID, userId).
				Preload("Items.Ticket").
				Preload("Event").
				Preload("Redemption").
				First(&booking).Error; err != nil {
				log.Printf("Error retrieving Booking: %s\n", err.Error())
				ctx.Status(http.StatusNotFound)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": booking})
		})
	return g
}
