package middlewares

import (
	"log"
	"os"
	"strconv"
	"strings"

	"tbs/src/db"
	"tbs/src/models"
	"tbs/src/types"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var jwtKey = []byte(os.Getenv("JWT_SECRET"))

func AuthMiddleware(ctx *gin.Context) {
	bearerToken := ctx.Request.Header.Get("Authorization")
	if !strings.HasPrefix(bearerToken, "Bearer") {
		ctx.AbortWithStatus(401)
		return
	}
	reqToken := strings.Split(bearerToken, " ")[1]
	if reqToken == "" {
		ctx.AbortWithStatus(401)
		return
	}
	user, err := userFromToken(reqToken)
	if err != nil {
		log.Printf("token error: %s\n", err.Error())
		ctx.AbortWithStatus(401)
		return
	}
	ctx.Set("email", user.Email)
	ctx.Set("id", user.ID)
	ctx.Set("uid", user.UID)
	ctx.Set("role", user.Role)
}

// OptionalAuthMiddleware resolves the caller when a bearer token is present
// but lets the request through without one. Checkout accepts guests; a bad
// token is still a bad token.
func OptionalAuthMiddleware(ctx *gin.Context) {
	bearerToken := ctx.Request.Header.Get("Authorization")
	if bearerToken == "" {
		return
	}
	if !strings.HasPrefix(bearerToken, "Bearer") {
		ctx.AbortWithStatus(401)
		return
	}
	reqToken := strings.Split(bearerToken, " ")[1]
	user, err := userFromToken(reqToken)
	if err != nil {
		log.Printf("token error: %s\n", err.Error())
		ctx.AbortWithStatus(401)
		return
	}
	ctx.Set("email", user.Email)
	ctx.Set("id", user.ID)
	ctx.Set("uid", user.UID)
	ctx.Set("role", user.Role)
}

func userFromToken(reqToken string) (*models.User, error) {
	claims := &types.Claims{}
	tkn, err := jwt.ParseWithClaims(reqToken, claims, func(t *jwt.Token) (any, error) {
		return jwtKey, nil
	})
	if err != nil {
		return nil, err
	}
	if !tkn.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}
	uid, err := strconv.Atoi(claims.Subject)
	if err != nil {
		return nil, err
	}
	var user models.User
	conn := db.GetDb()
	if err := conn.Model(&models.User{}).Where(&models.User{ID: uint(uid)}).Find(&user).Error; err != nil {
		return nil, err
	}
	if uint(uid) != user.ID || user.ID < 1 {
		return nil, jwt.ErrTokenInvalidSubject
	}
	return &user, nil
}

// UserIDFromContext returns the authenticated user id, or nil for guests.
func UserIDFromContext(ctx *gin.Context) *uint {
	v, ok := ctx.Get("id")
	if !ok {
		return nil
	}
	id, ok := v.(uint)
	if !ok || id == 0 {
		return nil
	}
	return &id
}
