package service

import (
	"fmt"

	"tradedesk/internal/model"

	"github.com/google/uuid"
)

// orderURL is the deep link carried by every order notification.
func orderURL(orderID uuid.UUID) string {
	return fmt.Sprintf("/orders?id=%s", orderID)
}

func notifyNewResponse(o *model.Order) model.Notification {
	return model.Notification{
		UserID:  o.SellerID,
		Title:   "Новый отклик",
		Message: fmt.Sprintf("Поступил новый отклик на «%s» (заказ %s)", o.Title, o.OrderNumber),
		URL:     orderURL(o.ID),
		Kind:    model.KindNewResponse,
	}
}

func notifyCounterOffered(o *model.Order, recipient uuid.UUID, price float64) model.Notification {
	return model.Notification{
		UserID:  recipient,
		Title:   "Встречное предложение",
		Message: fmt.Sprintf("По заказу %s предложена цена %.2f за %s", o.OrderNumber, price, o.Unit),
		URL:     orderURL(o.ID),
		Kind:    model.KindCounterOffered,
	}
}

func notifyCounterAccepted(o *model.Order, recipient uuid.UUID) model.Notification {
	return model.Notification{
		UserID:  recipient,
		Title:   "Встречное предложение принято",
		Message: fmt.Sprintf("Встречная цена по заказу %s принята", o.OrderNumber),
		URL:     orderURL(o.ID),
		Kind:    model.KindCounterAccepted,
	}
}

func notifyOrderAccepted(o *model.Order) model.Notification {
	return model.Notification{
		UserID:  o.BuyerID,
		Title:   "Заказ принят",
		Message: fmt.Sprintf("Продавец принял заказ %s", o.OrderNumber),
		URL:     orderURL(o.ID),
		Kind:    model.KindOrderAccepted,
	}
}

func notifyOrderRejected(o *model.Order, recipient uuid.UUID, reason string) model.Notification {
	msg := fmt.Sprintf("Заказ %s отклонён", o.OrderNumber)
	if reason != "" {
		msg += ": " + reason
	}
	return model.Notification{
		UserID:  recipient,
		Title:   "Заказ отклонён",
		Message: msg,
		URL:     orderURL(o.ID),
		Kind:    model.KindOrderRejected,
	}
}

func notifyOrderCancelled(o *model.Order, recipient uuid.UUID, reason string) model.Notification {
	msg := fmt.Sprintf("Заказ %s отменён", o.OrderNumber)
	if reason != "" {
		msg += ": " + reason
	}
	return model.Notification{
		UserID:  recipient,
		Title:   "Заказ отменён",
		Message: msg,
		URL:     orderURL(o.ID),
		Kind:    model.KindOrderCancelled,
	}
}

func notifyOrderCompleted(o *model.Order) model.Notification {
	return model.Notification{
		UserID:  o.SellerID,
		Title:   "Заказ завершён",
		Message: fmt.Sprintf("Покупатель подтвердил получение по заказу %s", o.OrderNumber),
		URL:     orderURL(o.ID),
		Kind:    model.KindOrderCompleted,
	}
}

func notifyNewMessage(o *model.Order, recipient uuid.UUID, senderName string) model.Notification {
	return model.Notification{
		UserID:  recipient,
		Title:   "Новое сообщение",
		Message: fmt.Sprintf("%s написал вам по заказу %s", senderName, o.OrderNumber),
		URL:     orderURL(o.ID),
		Kind:    model.KindNewMessage,
	}
}
