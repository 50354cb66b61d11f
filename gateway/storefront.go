package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/example/lensshop/pkg/assets"
	"github.com/example/lensshop/pkg/cart"
	"github.com/example/lensshop/pkg/catalog"
	"github.com/example/lensshop/pkg/checkout"
	"github.com/example/lensshop/pkg/identity"
	"github.com/example/lensshop/pkg/models"
	"github.com/example/lensshop/pkg/money"
	"github.com/example/lensshop/pkg/session"
	"github.com/example/lensshop/pkg/usererr"
	"github.com/gin-gonic/gin"
)

const defaultFeaturedLimit = 4

type productView struct {
	models.Product
	PriceLabel string   `json:"priceLabel"`
	Available  bool     `json:"inStock"`
	Images     []string `json:"images"`
}

type cartLine struct {
	Product        productView `json:"product"`
	Quantity       int64       `json:"quantity"`
	LineTotal      int64       `json:"lineTotal"`
	LineTotalLabel string      `json:"lineTotalLabel"`
}

type cartView struct {
	Items         []cartLine `json:"items"`
	Subtotal      int64      `json:"subtotal"`
	SubtotalLabel string     `json:"subtotalLabel"`
	ItemCount     int64      `json:"itemCount"`
}

// basePath honours a reverse proxy's prefix header before falling back to
// the request path.
func (g *Gateway) basePath(c *gin.Context) string {
	path := c.GetHeader("X-Forwarded-Prefix")
	if path == "" {
		path = c.Request.URL.Path
	}
	return assets.BasePath(g.config.Storefront.BasePath, path)
}

func newProductView(base string, p models.Product) productView {
	return productView{
		Product:    p,
		PriceLabel: money.FormatINR(p.Price),
		Available:  p.InStock(),
		Images:     assets.ProductImages(base, p.ID),
	}
}

func newProductViews(base string, products []models.Product) []productView {
	out := make([]productView, 0, len(products))
	for _, p := range products {
		out = append(out, newProductView(base, p))
	}
	return out
}

func newCartView(base string, c cart.Cart) cartView {
	lines := make([]cartLine, 0, len(c.Items))
	for _, it := range c.Items {
		lines = append(lines, cartLine{
			Product:        newProductView(base, it.Product),
			Quantity:       it.Quantity,
			LineTotal:      it.LineTotal(),
			LineTotalLabel: money.FormatINR(it.LineTotal()),
		})
	}
	return cartView{
		Items:         lines,
		Subtotal:      c.Subtotal(),
		SubtotalLabel: money.FormatINR(c.Subtotal()),
		ItemCount:     c.ItemCount(),
	}
}

func (g *Gateway) getContent(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"site":      g.content,
		"copyright": g.content.Copyright(time.Now().Year()),
		"basePath":  g.basePath(c),
	})
}

func (g *Gateway) listProducts(c *gin.Context) {
	products, err := g.catalog.All(c.Request.Context())
	if err != nil {
		g.fail(c, err)
		return
	}
	filtered := catalog.Filter(products, c.DefaultQuery("category", catalog.CategoryAll), c.Query("q"))
	c.JSON(http.StatusOK, gin.H{
		"products": newProductViews(g.basePath(c), filtered),
		"total":    len(filtered),
	})
}

func (g *Gateway) featuredProducts(c *gin.Context) {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		limit = defaultFeaturedLimit
	}
	products, err := g.catalog.All(c.Request.Context())
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": newProductViews(g.basePath(c), catalog.Featured(products, limit))})
}

func (g *Gateway) categoryProducts(c *gin.Context) {
	products, err := g.catalog.ByCategory(c.Request.Context(), models.Category(c.Param("category")))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"category": c.Param("category"),
		"products": newProductViews(g.basePath(c), products),
	})
}

func (g *Gateway) getProduct(c *gin.Context) {
	p, err := g.catalog.Product(c.Request.Context(), c.Param("id"))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newProductView(g.basePath(c), p))
}

func (g *Gateway) me(c *gin.Context) {
	ctx := c.Request.Context()
	id, ok := identity.FromContext(ctx)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"authenticated": false, "isAdmin": false})
		return
	}
	profile, err := g.account.GetCallerUserProfile(ctx)
	if err != nil {
		g.fail(c, usererr.SanitizeStorefront(err))
		return
	}
	isAdmin, err := g.admin.IsAdmin(ctx)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"principal":     id.Principal,
		"profile":       profile,
		"isAdmin":       isAdmin,
	})
}

func (g *Gateway) getCart(c *gin.Context) {
	current, err := g.sessions.Cart(c.Request.Context(), sessionID(c))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newCartView(g.basePath(c), current))
}

type addItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int64  `json:"quantity"`
}

type quantityRequest struct {
	Quantity int64 `json:"quantity"`
}

// checkStock is the boundary check in front of the permissive cart store.
func checkStock(p models.Product, want int64) error {
	if p.Stock <= 0 {
		return usererr.New(usererr.KindConflict, "This product is out of stock.")
	}
	if want > p.Stock {
		return usererr.New(usererr.KindConflict, fmt.Sprintf("Only %d in stock.", p.Stock))
	}
	return nil
}

func (g *Gateway) addCartItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		g.fail(c, errBadRequest)
		return
	}
	if req.Quantity <= 0 {
		req.Quantity = 1
	}
	ctx := c.Request.Context()
	p, err := g.catalog.Product(ctx, req.ProductID)
	if err != nil {
		g.fail(c, err)
		return
	}

	v, err := g.sessions.WithCart(ctx, sessionID(c), func(s *cart.Store) (any, error) {
		if err := checkStock(p, s.Cart().Quantity(p.ID)+req.Quantity); err != nil {
			return nil, err
		}
		return s.AddItem(context.WithoutCancel(ctx), p, req.Quantity), nil
	})
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newCartView(g.basePath(c), v.(cart.Cart)))
}

func (g *Gateway) updateCartItem(c *gin.Context) {
	var req quantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		g.fail(c, errBadRequest)
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")
	if req.Quantity > 0 {
		p, err := g.catalog.Product(ctx, id)
		if err != nil {
			g.fail(c, err)
			return
		}
		if err := checkStock(p, req.Quantity); err != nil {
			g.fail(c, err)
			return
		}
	}
	current, err := g.sessions.SetQuantity(ctx, sessionID(c), id, req.Quantity)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newCartView(g.basePath(c), current))
}

func (g *Gateway) removeCartItem(c *gin.Context) {
	current, err := g.sessions.RemoveItem(c.Request.Context(), sessionID(c), c.Param("id"))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newCartView(g.basePath(c), current))
}

func (g *Gateway) clearCart(c *gin.Context) {
	current, err := g.sessions.ClearCart(c.Request.Context(), sessionID(c))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newCartView(g.basePath(c), current))
}

// sessionBasket lets checkout read and clear a session's cart through the
// session actor without holding it during the order call.
type sessionBasket struct {
	sessions *session.Manager
	id       string
}

func (b sessionBasket) Snapshot(ctx context.Context) (cart.Cart, error) {
	return b.sessions.Cart(ctx, b.id)
}

func (b sessionBasket) Clear(ctx context.Context) error {
	_, err := b.sessions.ClearCart(ctx, b.id)
	return err
}

func (g *Gateway) placeOrder(c *gin.Context) {
	var form checkout.ShippingForm
	if err := c.ShouldBindJSON(&form); err != nil {
		g.fail(c, errBadRequest)
		return
	}
	ctx := c.Request.Context()
	if _, ok := identity.FromContext(ctx); !ok {
		g.fail(c, usererr.New(usererr.KindAuthenticationRequired, usererr.MsgSignIn))
		return
	}

	receipt, err := g.checkout.PlaceOrder(ctx, sessionBasket{sessions: g.sessions, id: sessionID(c)}, form)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, receipt)
}

func (g *Gateway) listOrders(c *gin.Context) {
	ctx := c.Request.Context()
	if _, ok := identity.FromContext(ctx); !ok {
		g.fail(c, usererr.New(usererr.KindAuthenticationRequired, usererr.MsgSignIn))
		return
	}
	orders, err := g.account.GetCallerOrders(ctx)
	if err != nil {
		g.fail(c, usererr.SanitizeStorefront(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "total": len(orders)})
}

func (g *Gateway) getOrder(c *gin.Context) {
	ctx := c.Request.Context()
	if _, ok := identity.FromContext(ctx); !ok {
		g.fail(c, usererr.New(usererr.KindAuthenticationRequired, usererr.MsgSignIn))
		return
	}
	order, err := g.account.GetOrder(ctx, c.Param("id"))
	if err != nil {
		g.fail(c, usererr.SanitizeStorefront(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order":      order,
		"totalLabel": money.FormatINR(order.Total),
	})
}
