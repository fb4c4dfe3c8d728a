// internal/service/order/application/dto.go
package application

import "atlas/internal/service/order/domain"

// CreateOrderRequest 接口层传入的下单请求。
type CreateOrderRequest struct {
	UserID          string             `json:"userId"`
	Items           []CreateOrderItem  `json:"items"`
	ShippingAddress CreateOrderAddress `json:"shippingAddress"`
	Currency        string             `json:"currency"`
}

type CreateOrderItem struct {
	ProductID string `json:"productId"`
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
}

type CreateOrderAddress struct {
	RecipientName string `json:"recipientName"`
	StreetAddress string `json:"streetAddress"`
	City          string `json:"city"`
	Country       string `json:"country"`
}

func (r *CreateOrderRequest) toDomain() (string, []domain.NewOrderItem, domain.ShippingAddress) {
	items := make([]domain.NewOrderItem, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, domain.NewOrderItem{
			ProductID: it.ProductID,
			SKU:       it.SKU,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}
	return r.UserID, items, domain.ShippingAddress{
		RecipientName: r.ShippingAddress.RecipientName,
		StreetAddress: r.ShippingAddress.StreetAddress,
		City:          r.ShippingAddress.City,
		Country:       r.ShippingAddress.Country,
	}
}
