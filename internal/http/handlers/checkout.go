package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/config"
	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/http/middleware"
	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/http/validation"
	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/modules/orders"
	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/modules/payments"
	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/shared/apperr"
)

type CheckoutHandler struct {
	Logger *slog.Logger
	Svc    *payments.Service
	Cfg    *config.Service
}

func NewCheckoutHandler(logger *slog.Logger, svc *payments.Service, cfg *config.Service) *CheckoutHandler {
	return &CheckoutHandler{Logger: logger, Svc: svc, Cfg: cfg}
}

type checkoutInput struct {
	Kind          string `json:"kind" binding:"required,oneof=shop registration"`
	CustomerName  string `json:"customerName" binding:"required,min=2,max=255"`
	CustomerEmail string `json:"customerEmail" binding:"required,email,max=255"`
	Amount        string `json:"amount" binding:"required,max=16"`
	ItemName      string `json:"itemName" binding:"omitempty,max=100"`

	FormSubmissionID string `json:"formSubmissionId" binding:"omitempty,uuid"`
	Gateway          string `json:"gateway" binding:"omitempty,oneof=payfast yoco"`
}

// POST /checkout
func (h *CheckoutHandler) Create(c *gin.Context) {
	var in checkoutInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fields := validation.FromBindError(err, &in)
		middleware.Fail(c, apperr.InvalidErr("Please check the form fields.", fields))
		return
	}

	amount, err := decimal.NewFromString(in.Amount)
	if err != nil || amount.LessThanOrEqual(decimal.Zero) {
		middleware.Fail(c, apperr.InvalidErr("Please check the form fields.",
			map[string]string{"amount": "Enter a positive amount."}))
		return
	}

	set := h.Cfg.Settings()

	gateway := in.Gateway
	if gateway == "" {
		gateway = set.DefaultGateway
	}

	itemName := in.ItemName
	if itemName == "" {
		itemName = "Winter League order"
	}

	svcIn := payments.CheckoutInput{
		Kind:          in.Kind,
		CustomerName:  in.CustomerName,
		CustomerEmail: in.CustomerEmail,
		Amount:        amount,
		Currency:      "ZAR",
		ItemName:      itemName,
		GatewayName:   gateway,
		ReturnURL:     set.BaseURL + "/payments/return",
		CancelURL:     set.BaseURL + "/payments/cancel",
		NotifyURL:     set.BaseURL + "/webhooks/" + gateway,
	}
	if in.FormSubmissionID != "" {
		ref := in.FormSubmissionID
		svcIn.FormSubmissionID = &ref
	}

	out, err := h.Svc.CreateOrderCheckout(c.Request.Context(), svcIn)
	if err != nil {
		switch {
		case errors.Is(err, orders.ErrDuplicateOrder):
			middleware.Fail(c, apperr.ConflictErr("An order with this number already exists."))
		case errors.Is(err, payments.ErrUnknownGateway):
			middleware.Fail(c, apperr.InvalidErr("Unknown payment gateway.", nil))
		case errors.Is(err, payments.ErrGatewayUnavailable):
			middleware.Fail(c, &apperr.AppError{
				Kind:      apperr.Internal,
				PublicMsg: "The payment gateway is temporarily unavailable. Please try again.",
				Err:       err,
			})
		default:
			middleware.Fail(c, apperr.Wrap(err))
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"orderNumber": out.OrderNumber,
		"checkoutId":  out.CheckoutID,
		"redirectUrl": out.RedirectURL,
	})
}
