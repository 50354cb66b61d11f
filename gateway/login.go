package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type signInRequest struct {
	Credential string `json:"credential" binding:"required"`
}

type loginFormRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
	Phone *string `json:"phone"`
}

type codeRequest struct {
	Code string `json:"code"`
}

// respondFlow answers every login call with the flow snapshot so the page
// can render field errors and pending state next to the outcome.
func (g *Gateway) respondFlow(c *gin.Context, err error) {
	flow := loginFlow(c)
	if err != nil {
		status, body := g.classify(c, err)
		g.metrics.Error(body.Code)
		c.JSON(status, gin.H{"error": body, "flow": flow.Snapshot()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"flow": flow.Snapshot()})
}

func (g *Gateway) loginState(c *gin.Context) {
	g.respondFlow(c, nil)
}

func (g *Gateway) signIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		g.respondFlow(c, errBadRequest)
		return
	}
	g.respondFlow(c, loginFlow(c).SignIn(c.Request.Context(), req.Credential))
}

func (g *Gateway) editLoginForm(c *gin.Context) {
	var req loginFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		g.respondFlow(c, errBadRequest)
		return
	}
	flow := loginFlow(c)
	var err error
	if req.Name != nil {
		err = flow.SetName(*req.Name)
	}
	if err == nil && req.Email != nil {
		err = flow.SetEmail(*req.Email)
	}
	if err == nil && req.Phone != nil {
		err = flow.SetPhone(c.Request.Context(), *req.Phone)
	}
	g.respondFlow(c, err)
}

func (g *Gateway) sendCode(c *gin.Context) {
	g.respondFlow(c, loginFlow(c).SendCode(c.Request.Context()))
}

func (g *Gateway) setCode(c *gin.Context) {
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		g.respondFlow(c, errBadRequest)
		return
	}
	g.respondFlow(c, loginFlow(c).SetCode(req.Code))
}

func (g *Gateway) resendCode(c *gin.Context) {
	g.respondFlow(c, loginFlow(c).Resend(c.Request.Context()))
}

func (g *Gateway) verifyCode(c *gin.Context) {
	g.respondFlow(c, loginFlow(c).VerifyCode(c.Request.Context()))
}

func (g *Gateway) continueLogin(c *gin.Context) {
	flow := loginFlow(c)
	redirect, err := flow.Continue()
	if err != nil {
		g.respondFlow(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"redirect": redirect, "flow": flow.Snapshot()})
}
