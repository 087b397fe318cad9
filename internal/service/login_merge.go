package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Christophe-THEVENET/greengoodies/internal/repository"
	"github.com/Christophe-THEVENET/greengoodies/internal/session"
)

// LoginMergeHandler reconciles the anonymous session cart with the user's
// pending order, once per successful authentication.
//
// The policy is discard-and-replace: an existing pending order wins outright
// and the anonymous cart is thrown away, never merged additively. When no
// pending order exists, a non-empty anonymous cart is materialized into one.
type LoginMergeHandler struct {
	svc *CartService
	log *zap.Logger
}

func NewLoginMergeHandler(svc *CartService, log *zap.Logger) *LoginMergeHandler {
	return &LoginMergeHandler{svc: svc, log: log}
}

// OnLogin runs synchronously inside the authentication flow. A persistence
// failure is reported to the caller as ErrSyncFailed and queued as a
// notification; authentication itself is not the handler's concern.
func (h *LoginMergeHandler) OnLogin(ctx context.Context, sessionID string, userID int64) error {
	order, err := h.svc.orders.FindUnvalidatedByUser(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrOrderNotFound) {
		return h.reportFailure(ctx, sessionID, userID, err)
	}

	if err == nil {
		// The pending order is authoritative: rebuild the session cart from
		// its lines and drop whatever the anonymous session held.
		cartData := make(map[int64]int32, len(order.Lines))
		for _, line := range order.Lines {
			cartData[line.ProductID] = line.Quantity
		}

		if err := session.SaveCartData(ctx, h.svc.sessions, sessionID, cartData); err != nil {
			return h.reportFailure(ctx, sessionID, userID, err)
		}
		id := order.ID
		if err := session.SaveOrderID(ctx, h.svc.sessions, sessionID, &id); err != nil {
			return h.reportFailure(ctx, sessionID, userID, err)
		}
		return nil
	}

	// No pending order: a non-empty anonymous cart becomes one.
	cart := h.svc.Cart(sessionID, userID)
	snap, err := cart.Snapshot(ctx)
	if err != nil {
		return h.reportFailure(ctx, sessionID, userID, err)
	}
	if snap.IsEmpty() {
		return nil
	}

	if err := cart.sync(ctx); err != nil {
		return h.reportFailure(ctx, sessionID, userID, err)
	}
	if err := cart.saveSession(ctx); err != nil {
		return h.reportFailure(ctx, sessionID, userID, err)
	}
	return nil
}

// reportFailure surfaces the merge failure instead of swallowing it: the
// caller gets ErrSyncFailed, and a notification is queued best-effort so the
// user can be told their cart did not carry over.
func (h *LoginMergeHandler) reportFailure(ctx context.Context, sessionID string, userID int64, cause error) error {
	h.log.Error("login cart merge failed",
		zap.Int64("user_id", userID),
		zap.Error(cause))

	payload, err := json.Marshal(map[string]interface{}{
		"user_id":    userID,
		"session_id": sessionID,
	})
	if err == nil {
		err = h.svc.orders.EnqueueNotification(ctx, &repository.Notification{
			EventType:   "cart_merge_failed",
			AggregateID: fmt.Sprint(userID),
			Payload:     payload,
		})
	}
	if err != nil {
		h.log.Error("enqueue merge failure notification", zap.Error(err))
	}

	if errors.Is(cause, ErrSyncFailed) {
		return cause
	}
	return fmt.Errorf("%w: %v", ErrSyncFailed, cause)
}
