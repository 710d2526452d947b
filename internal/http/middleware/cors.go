package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CORS returns a CORS middleware. origins is "*" or a comma separated allow list.
func CORS(origins string) fiber.Handler {
	allowAll := strings.TrimSpace(origins) == "" || strings.TrimSpace(origins) == "*"
	allowed := make(map[string]struct{})
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			allowed[o] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		if allowAll {
			c.Set("Access-Control-Allow-Origin", "*")
		} else if origin := c.Get(fiber.HeaderOrigin); origin != "" {
			if _, ok := allowed[origin]; ok {
				c.Set("Access-Control-Allow-Origin", origin)
			}
			c.Vary(fiber.HeaderOrigin)
		}
		c.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID")
		c.Set("Access-Control-Expose-Headers", "Content-Length, Content-Type, X-Request-ID")
		c.Set("Access-Control-Max-Age", "86400")

		if c.Method() == fiber.MethodOptions {
			return c.SendStatus(fiber.StatusNoContent)
		}

		return c.Next()
	}
}
