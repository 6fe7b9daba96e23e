package pricing

import (
	"github.com/gin-gonic/gin"

	"github.com/congregate/backend/pkg/response"
)

// List handles GET /price-tiers.
func List(c *gin.Context) {
	response.OK(c, Tiers())
}
