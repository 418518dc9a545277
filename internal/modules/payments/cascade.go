package payments

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/mailer"
	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/modules/email"
	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/modules/orders"
	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/modules/teams"
)

type CascadeResult struct {
	PlayersMarked int64
	RevenueMarked int64
	EmailSent     bool
	Errors        []string
}

// Cascade propagates a paid transition into the dependent records: player
// payment flags, team revenue entries, and the confirmation email. Every step
// is independently idempotent (conditional updates), so replaying the whole
// cascade for an order is safe. Failures are collected, never propagated;
// the order transition stands regardless.
type Cascade struct {
	orders *orders.Repo
	teams  *teams.Repo
	mail   mailer.Service
	sender email.Sender
	logger *slog.Logger
}

func NewCascade(orderRepo *orders.Repo, teamRepo *teams.Repo, mail mailer.Service, sender email.Sender, logger *slog.Logger) *Cascade {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cascade{orders: orderRepo, teams: teamRepo, mail: mail, sender: sender, logger: logger}
}

func (c *Cascade) Run(ctx context.Context, ord orders.Order) CascadeResult {
	var res CascadeResult

	// Players are matched by the parent's email, not an order FK:
	// registrations and payments are created by independent flows. One order
	// is one parent's registration batch, so flipping all of that parent's
	// pending players is the intended behavior.
	players, err := c.teams.MarkPlayersPaid(ctx, ord.CustomerEmail)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("mark players paid: %v", err))
	} else {
		res.PlayersMarked = players
	}

	refs, err := c.teams.SubmissionRefsForEmail(ctx, ord.CustomerEmail)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("collect submission refs: %v", err))
	} else {
		revenue, err := c.teams.MarkRevenuePaid(ctx, refs)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("mark revenue paid: %v", err))
		} else {
			res.RevenueMarked = revenue
		}
	}

	// Fire-and-forget: a failed email is logged, never retried here.
	if err := c.sender.SendPaymentConfirmation(ctx, c.mail, ord); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("send confirmation email: %v", err))
	} else {
		res.EmailSent = true
	}

	if len(res.Errors) == 0 {
		if err := c.orders.AppendHistory(ctx, ord.OrderNumber, "cascade: completed"); err != nil {
			c.logger.WarnContext(ctx, "failed to record cascade completion",
				"order_number", ord.OrderNumber, "err", err)
		}
	}

	c.logger.InfoContext(ctx, "cascade finished",
		"order_number", ord.OrderNumber,
		"players_marked", res.PlayersMarked,
		"revenue_marked", res.RevenueMarked,
		"email_sent", res.EmailSent,
		"errors", len(res.Errors))

	return res
}
