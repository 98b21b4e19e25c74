package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type registerRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=6"`
	DisplayName string `json:"displayName" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// RegisterRoutes mounts POST /register and POST /login on the group.
func RegisterRoutes(rg *gin.RouterGroup, svc *Service) {
	rg.POST("/register", func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"msg": ErrInvalidInput.Error()})
			return
		}
		if err := svc.Register(req.Email, req.Password, req.DisplayName); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, ErrEmailTaken) || errors.Is(err, ErrInvalidInput) {
				status = http.StatusBadRequest
			}
			c.JSON(status, gin.H{"msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"msg": "user registered successfully"})
	})

	rg.POST("/login", func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"msg": ErrInvalidInput.Error()})
			return
		}
		identity, token, err := svc.Login(req.Email, req.Password)
		if err != nil {
			if errors.Is(err, ErrInvalidCredentials) {
				c.JSON(http.StatusBadRequest, gin.H{"msg": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"token": token,
			"user": gin.H{
				"id":          identity.ID,
				"displayName": identity.Name,
			},
		})
	})
}
