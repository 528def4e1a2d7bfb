package fakeruntime

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"conformance/internal/admin"
	"conformance/pkg/logging"

	"github.com/gin-gonic/gin"
)

func (r *Runtime) adminRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.POST("/deployments", r.registerDeployment)
	router.GET("/deployments", r.listDeployments)
	router.PATCH("/services/:name", r.modifyService)
	router.DELETE("/invocations/:id", r.terminateInvocation)
	return router
}

func errorBody(msg string) gin.H {
	return gin.H{"message": msg}
}

func (r *Runtime) registerDeployment(c *gin.Context) {
	var req admin.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.URI == "" {
		c.JSON(http.StatusBadRequest, errorBody("uri is required"))
		return
	}

	ep, err := r.discover(req.URI)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody("discovery of "+req.URI+" failed: "+err.Error()))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if i := slices.IndexFunc(r.deployments, func(d *deploymentRecord) bool { return d.uri == req.URI }); i >= 0 {
		if !req.Force {
			c.JSON(http.StatusConflict, errorBody("deployment "+req.URI+" already registered"))
			return
		}
		r.deployments = slices.Delete(r.deployments, i, i+1)
	}

	dep := &deploymentRecord{id: newID("dp_"), uri: req.URI, env: ep.Env}
	for _, name := range ep.Services {
		r.revisions[name]++
		dep.services = append(dep.services, admin.ServiceRef{Name: name, Revision: r.revisions[name]})
	}
	r.deployments = append(r.deployments, dep)
	logging.Debug(fakeSubsystem, "Registered deployment %s at %s with services %v", dep.id, dep.uri, ep.Services)

	c.JSON(http.StatusCreated, admin.RegisterResponse{ID: dep.id, Services: slices.Clone(dep.services)})
}

func (r *Runtime) listDeployments(c *gin.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"deployments": r.deploymentsLocked()})
}

func (r *Runtime) modifyService(c *gin.Context) {
	name := c.Param("name")

	var req struct {
		Public               *bool  `json:"public"`
		IdempotencyRetention string `json:"idempotency_retention"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.latestDeploymentLocked(name) == nil {
		c.JSON(http.StatusNotFound, errorBody("service "+name+" not found"))
		return
	}
	if req.IdempotencyRetention != "" {
		d, err := time.ParseDuration(req.IdempotencyRetention)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody("invalid idempotency_retention: "+err.Error()))
			return
		}
		r.retention[name] = d
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "idempotency_retention": r.retentionLocked(name).String()})
}

func (r *Runtime) terminateInvocation(c *gin.Context) {
	id := c.Param("id")

	mode := admin.Kill
	switch strings.ToLower(c.Query("mode")) {
	case "", "kill":
	case "cancel":
		mode = admin.Cancel
	default:
		c.JSON(http.StatusBadRequest, errorBody("unknown mode "+c.Query("mode")))
		return
	}

	r.mu.Lock()
	inv, ok := r.invocations[id]
	r.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, errorBody("invocation "+id+" not found"))
		return
	}

	select {
	case inv.terminate <- mode:
	default:
	}
	logging.Debug(fakeSubsystem, "Invocation %s terminated with mode %s", id, mode)
	c.Status(http.StatusAccepted)
}
