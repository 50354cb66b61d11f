// Package cart holds the shopping cart value and the store that keeps it
// in sync with durable storage.
package cart

import "github.com/example/lensshop/pkg/models"

type Item struct {
	Product  models.Product `json:"product"`
	Quantity int64          `json:"quantity"`
}

func (i Item) LineTotal() int64 {
	return i.Product.Price * i.Quantity
}

// Cart is an immutable value: every mutator returns a new Cart and leaves
// the receiver untouched. Items are unique by product id and never carry
// a quantity below one.
type Cart struct {
	Items []Item `json:"items"`
}

func Empty() Cart {
	return Cart{Items: []Item{}}
}

// Add merges quantity into the existing line for p, or appends a new line.
func (c Cart) Add(p models.Product, quantity int64) Cart {
	if quantity <= 0 {
		return c
	}
	items := c.copyItems()
	for i := range items {
		if items[i].Product.ID == p.ID {
			items[i].Quantity += quantity
			return Cart{Items: items}
		}
	}
	return Cart{Items: append(items, Item{Product: p, Quantity: quantity})}
}

// Remove drops the line for productID. Removing an absent id returns the
// cart unchanged.
func (c Cart) Remove(productID string) Cart {
	if _, ok := c.Find(productID); !ok {
		return c
	}
	items := make([]Item, 0, len(c.Items)-1)
	for _, it := range c.Items {
		if it.Product.ID != productID {
			items = append(items, it)
		}
	}
	return Cart{Items: items}
}

// SetQuantity replaces the quantity of an existing line. A quantity of
// zero or less removes the line; an absent id is a no-op.
func (c Cart) SetQuantity(productID string, quantity int64) Cart {
	if quantity <= 0 {
		return c.Remove(productID)
	}
	if _, ok := c.Find(productID); !ok {
		return c
	}
	items := c.copyItems()
	for i := range items {
		if items[i].Product.ID == productID {
			items[i].Quantity = quantity
		}
	}
	return Cart{Items: items}
}

func (c Cart) Find(productID string) (Item, bool) {
	for _, it := range c.Items {
		if it.Product.ID == productID {
			return it, true
		}
	}
	return Item{}, false
}

// Quantity reports how many units of productID are in the cart.
func (c Cart) Quantity(productID string) int64 {
	it, _ := c.Find(productID)
	return it.Quantity
}

func (c Cart) Subtotal() int64 {
	var total int64
	for _, it := range c.Items {
		total += it.LineTotal()
	}
	return total
}

func (c Cart) ItemCount() int64 {
	var n int64
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// OrderItems converts the cart into the line items of an order request.
func (c Cart) OrderItems() []models.OrderItem {
	out := make([]models.OrderItem, 0, len(c.Items))
	for _, it := range c.Items {
		out = append(out, models.OrderItem{ProductID: it.Product.ID, Quantity: it.Quantity})
	}
	return out
}

func (c Cart) copyItems() []Item {
	items := make([]Item, len(c.Items), len(c.Items)+1)
	copy(items, c.Items)
	return items
}

// normalize drops lines that cannot exist in a valid cart and merges
// duplicate product ids, keeping the first occurrence's position.
func (c Cart) normalize() Cart {
	out := Empty()
	for _, it := range c.Items {
		if it.Quantity <= 0 || it.Product.ID == "" {
			continue
		}
		out = out.Add(it.Product, it.Quantity)
	}
	return out
}
