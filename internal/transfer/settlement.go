package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/congo-pay/sigledger/internal/events"
	"github.com/congo-pay/sigledger/internal/ledger"
	"github.com/congo-pay/sigledger/internal/notification"
	"github.com/congo-pay/sigledger/internal/units"
)

// afterSettlement publishes the settlement event and emails the parties. It
// runs detached from the request; failures are logged and never reach the caller.
func (s *Service) afterSettlement(settlement ledger.Settlement) {
	if s.events == nil && s.notifier == nil {
		return
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SideEffectTimeout)
		defer cancel()

		rec := settlement.Record
		if s.events != nil {
			err := s.events.Publish(ctx, events.TransferEventsStream, events.TransferSettled, events.TransferSettledEvent{
				TransactionID: rec.ID,
				From:          rec.From,
				To:            rec.To,
				AmountMinor:   rec.AmountMinorUnits.String(),
				DisplayAmount: rec.DisplayAmount,
				FiatAmount:    rec.FiatAmount,
				FromBalance:   settlement.FromBalance.String(),
				ToBalance:     settlement.ToBalance.String(),
			})
			if err != nil {
				s.logger.Warn("publish transfer event failed", "transaction_id", rec.ID, "error", err)
			}
		}

		if s.notifier != nil {
			s.notify(ctx, rec.From, notification.Message{
				Kind:    notification.KindTransferSent,
				Subject: "Transfer sent",
				Body: fmt.Sprintf("You sent %s %s to %s.%s\nNew balance: %s %s\nTransaction: %s",
					rec.DisplayAmount, units.NativeSymbol, rec.To, fiatSuffix(rec.FiatAmount),
					units.FromMinor(settlement.FromBalance, units.NativeDecimals), units.NativeSymbol, rec.ID),
			})
			s.notify(ctx, rec.To, notification.Message{
				Kind:    notification.KindTransferReceived,
				Subject: "Transfer received",
				Body: fmt.Sprintf("You received %s %s from %s.%s\nTransaction: %s",
					rec.DisplayAmount, units.NativeSymbol, rec.From, fiatSuffix(rec.FiatAmount), rec.ID),
			})
		}
	}()
}

// notify sends msg to the account's email, if it has one.
func (s *Service) notify(ctx context.Context, addr string, msg notification.Message) {
	acc, err := s.ledger.GetAccount(ctx, addr)
	if err != nil {
		if !errors.Is(err, ledger.ErrAccountNotFound) {
			s.logger.Warn("notification lookup failed", "address", addr, "error", err)
		}
		return
	}
	if acc.Email == "" {
		return
	}
	msg.Destination = acc.Email
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("notification failed", "kind", msg.Kind, "address", addr, "error", err)
	}
}

func fiatSuffix(fiat string) string {
	if fiat == "" {
		return ""
	}
	return fmt.Sprintf(" (%s %s)", fiat, units.FiatSymbol)
}
