package middleware

import "github.com/labstack/echo/v4"

// jsonError writes the same {"message": ...} body echo uses for HTTPError.
func jsonError(c echo.Context, code int, msg string) error {
	if c.Response().Committed {
		return nil
	}
	return c.JSON(code, map[string]string{"message": msg})
}
