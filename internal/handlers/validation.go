package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"marketplace/internal/orders"
)

func respondValidationError(c *gin.Context, route string, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		details := make([]string, 0, len(validationErrors))
		for _, fieldError := range validationErrors {
			field := lowerCamel(fieldError.Field())
			switch fieldError.Tag() {
			case "required":
				details = append(details, fmt.Sprintf("%s is required", field))
			case "min":
				details = append(details, fmt.Sprintf("%s needs at least %s item(s)", field, fieldError.Param()))
			default:
				details = append(details, fmt.Sprintf("%s is invalid", field))
			}
		}
		log.Printf("[%s] returning error %d: validation failed: %s", route, http.StatusBadRequest, strings.Join(details, "; "))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":    "validation failed",
			"category": orders.KindValidation,
			"code":     orders.CodeInvalidInput,
			"details":  details,
		})
		return
	}

	log.Printf("[%s] returning error %d: invalid body: %v", route, http.StatusBadRequest, err)
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":    "invalid body",
		"category": orders.KindValidation,
		"code":     orders.CodeInvalidInput,
		"details":  err.Error(),
	})
}

func lowerCamel(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}
