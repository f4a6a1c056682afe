package http

import (
	"net/http"
	"strconv"

	domain "loan-registrar/internal/domain/loan"
	"loan-registrar/internal/usecase/loan"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

const (
	msgLoanSaved   = "Loan record saved successfully"
	msgLoanFailed  = "Failed to create loan"
	msgInvalidBody = "invalid body"
)

type LoanHandler struct{ uc *loan.Usecase }

func NewLoanHandler(uc *loan.Usecase) *LoanHandler { return &LoanHandler{uc: uc} }

// CreateLoanRequestV1 is the wire contract of POST /v1/loans.
type CreateLoanRequestV1 struct {
	CustomerID string           `json:"customerId" validate:"required,notblank"`
	DueDay     *float64         `json:"dueDay"     validate:"required,intlike,gte=1,lte=28"`
	Amount     *decimal.Decimal `json:"amount"     validate:"required"`
	Rate       *decimal.Decimal `json:"rate"       validate:"required"`
	Interest   *decimal.Decimal `json:"interest"`
	Notes      *string          `json:"notes"      validate:"omitempty,max=1000"`
}

type CreateLoanResponse struct {
	Message string `json:"message"`
	LoanID  string `json:"loanId"`
	Status  string `json:"status"`
}

func (r CreateLoanRequestV1) toInput() loan.CreateLoanInput {
	return loan.CreateLoanInput{
		CustomerID: r.CustomerID,
		DueDay:     *r.DueDay,
		Amount:     r.Amount,
		Rate:       r.Rate,
		Interest:   r.Interest,
		Notes:      r.Notes,
	}
}

func (h *LoanHandler) CreateLoan(c echo.Context) error {
	var req CreateLoanRequestV1
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: msgInvalidBody})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "validation failed",
			Details: ToFieldErrors(err),
		})
	}
	dto, err := h.uc.Create(c.Request().Context(), req.toInput())
	return writeOutcome(c, dto, err)
}

// writeOutcome is the only place registration outcomes become status codes.
func writeOutcome(c echo.Context, dto *loan.LoanDTO, err error) error {
	switch domain.Classify(err) {
	case domain.OutcomeCommitted:
		return c.JSON(http.StatusOK, CreateLoanResponse{
			Message: msgLoanSaved,
			LoanID:  dto.LoanID,
			Status:  dto.Status,
		})
	case domain.OutcomeInvalidInput, domain.OutcomeCustomerNotFound, domain.OutcomeConflict:
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: msgLoanFailed, Error: err.Error()})
	}
}

func (h *LoanHandler) ListCustomerLoans(c echo.Context) error {
	customerID := c.Param("customerId")
	loans, err := h.uc.ListCustomerLoans(c.Request().Context(), customerID)
	switch domain.Classify(err) {
	case domain.OutcomeCommitted:
		return c.JSON(http.StatusOK, map[string]any{"customerId": customerID, "loans": loans})
	case domain.OutcomeCustomerNotFound:
		return c.JSON(http.StatusNotFound, ErrorResponse{Message: err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "Failed to list loans", Error: err.Error()})
	}
}

func (h *LoanHandler) ListLoansDueOn(c echo.Context) error {
	day, err := strconv.ParseFloat(c.Param("dueDay"), 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: "dueDay must be a number"})
	}
	loans, err := h.uc.ListLoansDueOn(c.Request().Context(), day)
	switch domain.Classify(err) {
	case domain.OutcomeCommitted:
		return c.JSON(http.StatusOK, map[string]any{"dueDay": int(day), "loans": loans})
	case domain.OutcomeInvalidInput:
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "Failed to list loans", Error: err.Error()})
	}
}
