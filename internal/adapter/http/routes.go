package http

import "github.com/labstack/echo/v4"

// RegisterRoutes mounts the public API. createMW wraps only the loan
// creation route (idempotency).
func RegisterRoutes(e *echo.Echo, h *Handler, lh *LoanHandler, createMW ...echo.MiddlewareFunc) {
	e.GET("/health", h.Health)

	v1 := e.Group("/v1")
	v1.POST("/loans", lh.CreateLoan, createMW...)
	v1.GET("/loans/due/:dueDay", lh.ListLoansDueOn)
	v1.GET("/customers/:customerId/loans", lh.ListCustomerLoans)
}
