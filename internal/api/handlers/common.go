package handlers

import (
	"github.com/gin-gonic/gin"
)

type ErrorResponse struct {
	Error string `json:"error" example:"incident not found"`
}

type SuccessResponse struct {
	Message string `json:"message" example:"ok"`
}

func fail(c *gin.Context, status int, err error) {
	c.JSON(status, ErrorResponse{Error: err.Error()})
}
