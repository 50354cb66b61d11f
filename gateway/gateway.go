package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/example/lensshop/pkg/admin"
	"github.com/example/lensshop/pkg/catalog"
	"github.com/example/lensshop/pkg/checkout"
	"github.com/example/lensshop/pkg/config"
	"github.com/example/lensshop/pkg/content"
	"github.com/example/lensshop/pkg/identity"
	"github.com/example/lensshop/pkg/metrics"
	"github.com/example/lensshop/pkg/models"
	"github.com/example/lensshop/pkg/session"
	"github.com/example/lensshop/pkg/verification"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	sessionKey = "session_id"
	flowKey    = "login_flow"
)

// Account is the caller-scoped part of the backend the gateway reads
// directly.
type Account interface {
	GetCallerUserProfile(ctx context.Context) (*models.UserProfile, error)
	GetOrder(ctx context.Context, id string) (models.Order, error)
	GetCallerOrders(ctx context.Context) ([]models.Order, error)
}

type Deps struct {
	Config   *config.Config
	Sessions *session.Manager
	Catalog  *catalog.Catalog
	Checkout *checkout.Service
	Admin    *admin.Console
	Account  Account
	Gatherer prometheus.Gatherer
	Metrics  *metrics.Storefront
	Logger   *zap.Logger
}

// Gateway is the storefront's HTTP front door. Each browser is tied to a
// session actor through a cookie.
type Gateway struct {
	config   *config.Config
	content  content.Site
	sessions *session.Manager
	catalog  *catalog.Catalog
	checkout *checkout.Service
	admin    *admin.Console
	account  Account
	metrics  *metrics.Storefront
	logger   *zap.Logger
	router   *gin.Engine
	server   *http.Server
}

func NewGateway(deps Deps) *Gateway {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggerMiddleware(deps.Logger))

	addr := fmt.Sprintf("%s:%d", deps.Config.Gateway.Host, deps.Config.Gateway.Port)
	g := &Gateway{
		config:   deps.Config,
		content:  deps.Config.Content,
		sessions: deps.Sessions,
		catalog:  deps.Catalog,
		checkout: deps.Checkout,
		admin:    deps.Admin,
		account:  deps.Account,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		router:   router,
		server: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
	g.setupRoutes(deps.Gatherer)
	return g
}

func (g *Gateway) setupRoutes(gatherer prometheus.Gatherer) {
	// Health check
	g.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": g.sessions.Len()})
	})
	if gatherer != nil {
		g.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	v1 := g.router.Group("/api/v1")
	v1.GET("/content", g.getContent)
	{
		products := v1.Group("/products")
		products.GET("", g.listProducts)
		products.GET("/featured", g.featuredProducts)
		products.GET("/:id", g.getProduct)
		v1.GET("/categories/:category", g.categoryProducts)
	}

	s := v1.Group("", g.sessionMiddleware(), g.identityMiddleware())
	{
		s.GET("/me", g.me)

		cart := s.Group("/cart")
		cart.GET("", g.getCart)
		cart.POST("/items", g.addCartItem)
		cart.PUT("/items/:id", g.updateCartItem)
		cart.DELETE("/items/:id", g.removeCartItem)
		cart.DELETE("", g.clearCart)

		s.POST("/checkout", g.placeOrder)
		s.GET("/orders", g.listOrders)
		s.GET("/orders/:id", g.getOrder)

		login := s.Group("/login")
		login.GET("", g.loginState)
		login.POST("/sign-in", g.signIn)
		login.PUT("/form", g.editLoginForm)
		login.POST("/send-code", g.sendCode)
		login.PUT("/code", g.setCode)
		login.POST("/resend", g.resendCode)
		login.POST("/verify", g.verifyCode)
		login.POST("/continue", g.continueLogin)

		adm := s.Group("/admin")
		adm.GET("/products", g.adminListProducts)
		adm.POST("/products", g.adminCreateProduct)
		adm.PUT("/products/:id", g.adminUpdateProduct)
		adm.PUT("/products/:id/publish", g.adminSetPublished)
		adm.POST("/initialize", g.adminInitializeShop)
	}
}

func (g *Gateway) Handler() http.Handler {
	return g.router
}

func (g *Gateway) Start() error {
	g.logger.Info("Gateway starting", zap.String("address", g.server.Addr))
	if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (g *Gateway) Shutdown(ctx context.Context) error {
	return g.server.Shutdown(ctx)
}

// sessionMiddleware ties the request to a session id, issuing a new one
// when the cookie is missing or malformed.
func (g *Gateway) sessionMiddleware() gin.HandlerFunc {
	name := g.config.Gateway.SessionCookie
	maxAge := int(g.config.Storefront.SessionTTL / time.Second)
	return func(c *gin.Context) {
		id, err := c.Cookie(name)
		if err != nil || !validSessionID(id) {
			id = uuid.NewString()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(name, id, maxAge, "/", "", g.config.Gateway.SecureCookie, true)
		}
		c.Set(sessionKey, id)
		c.Next()
	}
}

func validSessionID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// identityMiddleware puts the identity the session signed in with into the
// request context, where the backend client picks it up.
func (g *Gateway) identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		flow, err := g.sessions.Flow(c.Request.Context(), sessionID(c))
		if err != nil {
			g.fail(c, err)
			return
		}
		c.Set(flowKey, flow)
		if id := flow.Identity(); !id.Anonymous() {
			c.Request = c.Request.WithContext(identity.NewContext(c.Request.Context(), id))
		}
		c.Next()
	}
}

func sessionID(c *gin.Context) string {
	return c.GetString(sessionKey)
}

func loginFlow(c *gin.Context) *verification.Flow {
	return c.MustGet(flowKey).(*verification.Flow)
}

func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
