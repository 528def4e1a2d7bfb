package fakeruntime

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"conformance/internal/ingress"
	"conformance/internal/services"

	"github.com/gin-gonic/gin"
)

const statusNotReady = 470

func (r *Runtime) ingressRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/restate/invocation/*rest", r.invocationRequest)
	// Service paths are dynamic, so they are dispatched by hand.
	router.NoRoute(r.serviceRequest)
	return router
}

func writeError(c *gin.Context, err error) {
	var te *terminalError
	if !errors.As(err, &te) {
		te = &terminalError{Code: http.StatusInternalServerError, Message: err.Error()}
	}
	c.JSON(te.Code, errorBody(te.Message))
}

func writeResult(c *gin.Context, inv *invocation) {
	if inv.err != nil {
		writeError(c, inv.err)
		return
	}
	c.Data(http.StatusOK, "application/json", inv.result)
}

// parseTarget reads {service}[/{key}]/{handler} from parts.
func parseTarget(parts []string) (ingress.Target, bool) {
	if len(parts) == 0 {
		return ingress.Target{}, false
	}
	info, ok := services.Lookup(parts[0])
	if !ok {
		return ingress.Target{}, false
	}
	switch {
	case info.Keyed && len(parts) == 3:
		return ingress.Target{Service: parts[0], Key: parts[1], Handler: parts[2]}, true
	case !info.Keyed && len(parts) == 2:
		return ingress.Target{Service: parts[0], Handler: parts[1]}, true
	}
	return ingress.Target{}, false
}

func (r *Runtime) serviceRequest(c *gin.Context) {
	parts := strings.Split(strings.Trim(c.Request.URL.Path, "/"), "/")
	send := len(parts) > 0 && parts[len(parts)-1] == "send"
	if send {
		parts = parts[:len(parts)-1]
	}
	target, ok := parseTarget(parts)
	if !ok || c.Request.Method != http.MethodPost {
		c.JSON(http.StatusNotFound, errorBody("no route for "+c.Request.Method+" "+c.Request.URL.Path))
		return
	}

	var delay time.Duration
	if raw := c.Query("delay"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || !send {
			c.JSON(http.StatusBadRequest, errorBody("invalid delay "+raw))
			return
		}
		delay = d
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	inv, existing, err := r.submit(target, body, c.GetHeader(ingress.IdempotencyKeyHeader), delay)
	if err != nil {
		writeError(c, err)
		return
	}

	if send {
		status := ingress.Accepted
		if existing {
			status = ingress.PreviouslyAccepted
		}
		c.JSON(http.StatusOK, ingress.SendResponse{InvocationID: inv.id, Status: status})
		return
	}

	if !r.wait(inv, c.Request.Context().Done()) {
		c.JSON(http.StatusServiceUnavailable, errorBody("invocation "+inv.id+" did not complete"))
		return
	}
	writeResult(c, inv)
}

// invocationRequest serves /restate/invocation/{id}/{attach|output} and
// /restate/invocation/{service}[/{key}]/{handler}/{idempotencyKey}/{attach|output}.
func (r *Runtime) invocationRequest(c *gin.Context) {
	parts := strings.Split(strings.Trim(c.Param("rest"), "/"), "/")
	if len(parts) < 2 {
		c.JSON(http.StatusNotFound, errorBody("no route for "+c.Request.URL.Path))
		return
	}
	action := parts[len(parts)-1]
	if action != "attach" && action != "output" {
		c.JSON(http.StatusNotFound, errorBody("no route for "+c.Request.URL.Path))
		return
	}

	var inv *invocation
	r.mu.Lock()
	if len(parts) == 2 {
		inv = r.invocations[parts[0]]
	} else if target, ok := parseTarget(parts[:len(parts)-2]); ok {
		inv = r.idempotent[idempotencyID(target, parts[len(parts)-2])]
	}
	r.mu.Unlock()

	if inv == nil {
		c.JSON(http.StatusNotFound, errorBody("invocation not found"))
		return
	}

	if action == "output" {
		if !inv.finished() {
			c.JSON(statusNotReady, errorBody("invocation "+inv.id+" is not completed yet"))
			return
		}
		writeResult(c, inv)
		return
	}

	if !r.wait(inv, c.Request.Context().Done()) {
		c.JSON(http.StatusServiceUnavailable, errorBody("invocation "+inv.id+" did not complete"))
		return
	}
	writeResult(c, inv)
}
