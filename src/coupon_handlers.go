package main

import (
	"log"
	"net/http"

	"tbs/src/coupons"
	"tbs/src/db"
	"tbs/src/models"
	"tbs/src/types"
	"tbs/src/utils"

	"github.com/gin-gonic/gin"
)

func couponHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		GET("/coupons", func(ctx *gin.Context) {
			var list []models.Coupon
			conn := db.GetDb()
			if err := conn.
				Order("created_at desc").
				Find(&list).Error; err != nil {
				log.Printf("Error retrieving Coupons: %s\n", err.Error())
				ctx.Status(http.StatusBadRequest)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": list})
		}).
		POST("/coupons", func(ctx *gin.Context) {
			var body types.CreateCouponRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			userId := ctx.GetUint("id")
			id, err := utils.CreateNewCoupon(&body, userId)
			if err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"id": id})
		}).
		DELETE("/coupons/:code", func(ctx *gin.Context) {
			var params types.CouponCodeURIParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			conn := db.GetDb()
			res := conn.Model(&models.Coupon{}).
				Where("code = ? AND active = ?", coupons.NormalizeCode(params.Code), true).
				Update("active", false)
			if res.Error != nil {
				log.Printf("Error deactivating Coupon: %s\n", res.Error.Error())
				ctx.Status(http.StatusBadRequest)
				return
			}
			if res.RowsAffected == 0 {
				ctx.Status(http.StatusNotFound)
				return
			}
			ctx.Status(http.StatusNoContent)
		})
	return g
}
