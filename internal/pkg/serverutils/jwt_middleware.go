package serverutils

import (
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func JwtMiddleware(ctx *fiber.Ctx) error {
	authHeader := ctx.Get("Authorization")
	if len(authHeader) < 7 || authHeader[:7] != "Bearer " {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "Missing token"})
	}
	tokenStr := authHeader[7:]

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.ErrUnauthorized
		}
		return []byte(os.Getenv("JWT_SECRET")), nil
	})

	if err != nil || !token.Valid {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "Invalid token"})
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "Invalid claims"})
	}

	userId, ok := claims["user_id"].(string)
	if !ok || userId == "" {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "Invalid claims"})
	}

	ctx.Locals("user_id", userId)
	return ctx.Next()
}

// UserIdFromLocals reads the authenticated user id stored by JwtMiddleware.
// Handlers mounted without the middleware get an unauthorized error instead
// of a panic.
func UserIdFromLocals(ctx *fiber.Ctx) (uuid.UUID, error) {
	userIdStr, ok := ctx.Locals("user_id").(string)
	if !ok {
		return uuid.Nil, NewApiError(fiber.StatusUnauthorized, "Missing user identity")
	}

	userId, err := uuid.Parse(userIdStr)
	if err != nil {
		return uuid.Nil, NewApiError(fiber.StatusUnauthorized, "Missing user identity")
	}

	return userId, nil
}
