package adapter

import (
	"context"

	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain/model"
)

type OrderEventStatus string

const (
	OrderWaitingPayment OrderEventStatus = "waiting_payment"
	OrderPaid           OrderEventStatus = "paid"
)

// OrderEvent is a purchase snapshot handed to the automation webhook.
type OrderEvent struct {
	Status   OrderEventStatus
	Purchase *model.Purchase
}

// OrderNotifier is best effort: Notify never reports failure to the caller.
type OrderNotifier interface {
	Notify(ctx context.Context, ev OrderEvent)
}
