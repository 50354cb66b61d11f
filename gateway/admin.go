package gateway

import (
	"net/http"

	"github.com/example/lensshop/pkg/admin"
	"github.com/gin-gonic/gin"
)

type publishRequest struct {
	Published *bool `json:"published" binding:"required"`
}

func (g *Gateway) adminListProducts(c *gin.Context) {
	products, err := g.admin.List(c.Request.Context())
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"products": newProductViews(g.basePath(c), products),
		"total":    len(products),
	})
}

func (g *Gateway) adminCreateProduct(c *gin.Context) {
	var form admin.ProductForm
	if err := c.ShouldBindJSON(&form); err != nil {
		g.fail(c, errBadRequest)
		return
	}
	if err := g.admin.Create(c.Request.Context(), form); err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"product": newProductView(g.basePath(c), form.Product())})
}

func (g *Gateway) adminUpdateProduct(c *gin.Context) {
	var form admin.ProductForm
	if err := c.ShouldBindJSON(&form); err != nil {
		g.fail(c, errBadRequest)
		return
	}
	form.ID = c.Param("id")
	if err := g.admin.Update(c.Request.Context(), form); err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product": newProductView(g.basePath(c), form.Product())})
}

func (g *Gateway) adminSetPublished(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		g.fail(c, errBadRequest)
		return
	}
	id := c.Param("id")
	if err := g.admin.SetPublished(c.Request.Context(), id, *req.Published); err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "published": *req.Published})
}

func (g *Gateway) adminInitializeShop(c *gin.Context) {
	if err := g.admin.InitializeShop(c.Request.Context()); err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "initialized"})
}
