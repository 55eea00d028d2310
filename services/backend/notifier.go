package main

import (
	"context"
	"log"
	"time"

	"github.com/go-resty/resty/v2"
)

// Notifier publica eventos de pedido para sistemas externos (push do PWA,
// painel da filial). Como o cache, é fail-open: falhas são logadas e nunca
// afetam o pedido já commitado.
type Notifier interface {
	OrderCreated(ctx context.Context, order *Order)
	OrderCancelled(ctx context.Context, order *Order)
}

// orderEvent é o payload enviado ao webhook
type orderEvent struct {
	Event       string `json:"event"`
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	BranchID    string `json:"branch_id"`
	Status      string `json:"status"`
}

// WebhookNotifier implementa Notifier via POST em um webhook configurável;
// com a URL vazia todas as notificações são no-op
type WebhookNotifier struct {
	client *resty.Client
	url    string
}

// NewWebhookNotifier cria uma nova instância de WebhookNotifier
func NewWebhookNotifier(url string) *WebhookNotifier {
	client := resty.New().
		SetTimeout(5 * time.Second)

	return &WebhookNotifier{
		client: client,
		url:    url,
	}
}

// OrderCreated notifica a criação de um pedido
func (n *WebhookNotifier) OrderCreated(ctx context.Context, order *Order) {
	n.post(ctx, "order.created", order)
}

// OrderCancelled notifica o cancelamento de um pedido
func (n *WebhookNotifier) OrderCancelled(ctx context.Context, order *Order) {
	n.post(ctx, "order.cancelled", order)
}

func (n *WebhookNotifier) post(ctx context.Context, event string, order *Order) {
	if n.url == "" {
		return
	}

	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(orderEvent{
			Event:       event,
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			BranchID:    order.BranchID,
			Status:      order.Status,
		}).
		Post(n.url)
	if err != nil {
		log.Printf("⚠️ webhook %s failed for order %s: %v", event, order.OrderNumber, err)
		return
	}
	if resp.IsError() {
		log.Printf("⚠️ webhook %s returned %d for order %s", event, resp.StatusCode(), order.OrderNumber)
	}
}
