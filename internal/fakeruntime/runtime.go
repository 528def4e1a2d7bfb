package fakeruntime

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"time"

	"conformance/internal/admin"
	"conformance/internal/ingress"
	"conformance/internal/services"
	"conformance/pkg/logging"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const fakeSubsystem = "FakeRuntime"

// DefaultIdempotencyRetention is how long a completed idempotent invocation
// is remembered unless the service was modified.
const DefaultIdempotencyRetention = 24 * time.Hour

// UpgradeVersionEnv is the env var UpgradeTest reports.
const UpgradeVersionEnv = services.UpgradeVersionEnv

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// Endpoint is what a deployment URI serves.
type Endpoint struct {
	Services []string
	Env      map[string]string
}

// DiscoverFunc resolves a deployment URI during registration.
type DiscoverFunc func(uri string) (Endpoint, error)

// Option configures a Runtime.
type Option func(*Runtime)

// WithDiscover replaces the default discovery, which reports every known
// service with an empty environment.
func WithDiscover(fn DiscoverFunc) Option {
	return func(r *Runtime) { r.discover = fn }
}

// WithRedelivery makes the runtime execute the handler again for every send
// that matched an existing idempotent invocation, while still answering
// PreviouslyAccepted. It models a runtime with broken deduplication.
func WithRedelivery() Option {
	return func(r *Runtime) { r.redeliver = true }
}

type deploymentRecord struct {
	id       string
	uri      string
	services []admin.ServiceRef
	env      map[string]string
}

func (d *deploymentRecord) hosts(service string) bool {
	return slices.ContainsFunc(d.services, func(s admin.ServiceRef) bool { return s.Name == service })
}

// terminalError is an invocation failure as seen by ingress callers.
type terminalError struct {
	Code    int
	Message string
}

func (e *terminalError) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

var (
	errKilled   = &terminalError{Code: http.StatusInternalServerError, Message: "killed"}
	errCanceled = &terminalError{Code: http.StatusConflict, Message: "canceled"}
	errShutdown = &terminalError{Code: http.StatusServiceUnavailable, Message: "runtime shutting down"}
)

type invocation struct {
	id         string
	target     ingress.Target
	deployment *deploymentRecord
	retention  time.Duration
	terminate  chan admin.TerminationMode
	done       chan struct{}

	// Written before done is closed.
	result      json.RawMessage
	err         *terminalError
	completedAt time.Time
}

func (inv *invocation) finished() bool {
	select {
	case <-inv.done:
		return true
	default:
		return false
	}
}

// Runtime is an in-process stand-in for the runtime under test. It serves the
// admin and ingress APIs and implements the test services itself.
type Runtime struct {
	discover  DiscoverFunc
	redeliver bool
	admin     *gin.Engine
	ingress   *gin.Engine

	mu             sync.Mutex
	deployments    []*deploymentRecord
	revisions      map[string]int
	retention      map[string]time.Duration
	invocations    map[string]*invocation
	idempotent     map[string]*invocation
	counters       map[string]int64
	maps           map[string]map[string]string
	awakeables     map[string]chan string
	singletonLocks map[string]bool
	cancelObserved map[string]bool

	closed    chan struct{}
	closeOnce sync.Once
	servers   []*httptest.Server
}

// New creates a fake runtime. Call Start to serve it over HTTP.
func New(opts ...Option) *Runtime {
	r := &Runtime{
		discover: func(string) (Endpoint, error) {
			return Endpoint{Services: services.Names()}, nil
		},
		revisions:      make(map[string]int),
		retention:      make(map[string]time.Duration),
		invocations:    make(map[string]*invocation),
		idempotent:     make(map[string]*invocation),
		counters:       make(map[string]int64),
		maps:           make(map[string]map[string]string),
		awakeables:     make(map[string]chan string),
		singletonLocks: make(map[string]bool),
		cancelObserved: make(map[string]bool),
		closed:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.admin = r.adminRouter()
	r.ingress = r.ingressRouter()
	return r
}

// AdminHandler serves the admin API.
func (r *Runtime) AdminHandler() http.Handler { return r.admin }

// IngressHandler serves the ingress API.
func (r *Runtime) IngressHandler() http.Handler { return r.ingress }

// Start serves both APIs on loopback listeners and returns their base URLs.
func (r *Runtime) Start() (adminURL, ingressURL string) {
	adminSrv := httptest.NewServer(r.admin)
	ingressSrv := httptest.NewServer(r.ingress)
	r.mu.Lock()
	r.servers = append(r.servers, adminSrv, ingressSrv)
	r.mu.Unlock()
	return adminSrv.URL, ingressSrv.URL
}

// Close fails every blocked invocation and stops the servers.
func (r *Runtime) Close() {
	r.closeOnce.Do(func() {
		close(r.closed)
		r.mu.Lock()
		servers := r.servers
		r.servers = nil
		r.mu.Unlock()
		for _, srv := range servers {
			srv.Close()
		}
	})
}

// Deployments returns the registered deployments.
func (r *Runtime) Deployments() []admin.Deployment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deploymentsLocked()
}

func (r *Runtime) deploymentsLocked() []admin.Deployment {
	out := make([]admin.Deployment, 0, len(r.deployments))
	for _, d := range r.deployments {
		out = append(out, admin.Deployment{ID: d.id, URI: d.uri, Services: slices.Clone(d.services)})
	}
	return out
}

// latestDeploymentLocked returns the most recently registered deployment
// hosting service. New invocations are routed there.
func (r *Runtime) latestDeploymentLocked(service string) *deploymentRecord {
	for i := len(r.deployments) - 1; i >= 0; i-- {
		if r.deployments[i].hosts(service) {
			return r.deployments[i]
		}
	}
	return nil
}

func (r *Runtime) retentionLocked(service string) time.Duration {
	if d, ok := r.retention[service]; ok {
		return d
	}
	return DefaultIdempotencyRetention
}

func idempotencyID(target ingress.Target, key string) string {
	return strings.Join([]string{target.Service, target.Key, target.Handler, key}, "/")
}

func newID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// submit creates an invocation of target, or returns the existing one when an
// unexpired invocation with the same idempotency key exists.
func (r *Runtime) submit(target ingress.Target, body []byte, idempotencyKey string, delay time.Duration) (*invocation, bool, error) {
	h, ok := r.handler(target.Service, target.Handler)
	if !ok {
		return nil, false, &terminalError{Code: http.StatusNotFound, Message: fmt.Sprintf("handler %s not found", target)}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	dep := r.latestDeploymentLocked(target.Service)
	if dep == nil {
		return nil, false, &terminalError{Code: http.StatusNotFound, Message: fmt.Sprintf("service %s not found", target.Service)}
	}

	if idempotencyKey != "" {
		if inv, ok := r.idempotent[idempotencyID(target, idempotencyKey)]; ok {
			if !inv.finished() || time.Since(inv.completedAt) < inv.retention {
				if r.redeliver {
					r.redeliverLocked(inv, h, body)
				}
				return inv, true, nil
			}
		}
	}

	inv := &invocation{
		id:         newID("inv_"),
		target:     target,
		deployment: dep,
		retention:  r.retentionLocked(target.Service),
		terminate:  make(chan admin.TerminationMode, 1),
		done:       make(chan struct{}),
	}
	r.invocations[inv.id] = inv
	if idempotencyKey != "" {
		r.idempotent[idempotencyID(target, idempotencyKey)] = inv
	}
	logging.Debug(fakeSubsystem, "Invocation %s of %s created", inv.id, target)

	go r.execute(inv, h, body, delay)
	return inv, false, nil
}

// redeliverLocked runs h once more on behalf of inv. The extra execution
// shares the invocation ID but its result is discarded.
func (r *Runtime) redeliverLocked(inv *invocation, h handler, body []byte) {
	shadow := &invocation{
		id:         inv.id,
		target:     inv.target,
		deployment: inv.deployment,
		retention:  inv.retention,
		terminate:  make(chan admin.TerminationMode, 1),
		done:       make(chan struct{}),
	}
	logging.Debug(fakeSubsystem, "Redelivering invocation %s of %s", inv.id, inv.target)
	go r.execute(shadow, h, body, 0)
}

func (r *Runtime) execute(inv *invocation, h handler, body []byte, delay time.Duration) {
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case mode := <-inv.terminate:
			r.complete(inv, nil, terminationError(mode))
			return
		case <-r.closed:
			r.complete(inv, nil, errShutdown)
			return
		}
	}
	result, err := h(r, inv, body)
	r.complete(inv, result, err)
}

func (r *Runtime) complete(inv *invocation, result any, err error) {
	var raw json.RawMessage
	var failure *terminalError
	if err != nil {
		if !errors.As(err, &failure) {
			failure = &terminalError{Code: http.StatusInternalServerError, Message: err.Error()}
		}
	} else {
		data, merr := json.Marshal(result)
		if merr != nil {
			failure = &terminalError{Code: http.StatusInternalServerError, Message: merr.Error()}
		}
		raw = data
	}

	r.mu.Lock()
	inv.result = raw
	inv.err = failure
	inv.completedAt = time.Now()
	r.mu.Unlock()
	close(inv.done)
}

// wait blocks until inv completes, the runtime closes or stop is closed.
func (r *Runtime) wait(inv *invocation, stop <-chan struct{}) bool {
	select {
	case <-inv.done:
		return true
	case <-r.closed:
		return false
	case <-stop:
		return false
	}
}

// block suspends an invocation until ch yields, or it is terminated.
func (r *Runtime) block(inv *invocation, ch <-chan string) (string, error) {
	select {
	case v := <-ch:
		return v, nil
	case mode := <-inv.terminate:
		return "", terminationError(mode)
	case <-r.closed:
		return "", errShutdown
	}
}

func terminationError(mode admin.TerminationMode) *terminalError {
	if mode == admin.Cancel {
		return errCanceled
	}
	return errKilled
}
