package services

import (
	"context"

	"conformance/internal/ingress"
)

// CounterUpdateResponse is returned by Counter.add.
type CounterUpdateResponse struct {
	OldValue int64 `json:"oldValue"`
	NewValue int64 `json:"newValue"`
}

// CounterClient invokes the Counter virtual object with a fixed key.
type CounterClient struct {
	client *ingress.Client
	key    string
}

// NewCounterClient returns a client for the counter identified by key.
func NewCounterClient(c *ingress.Client, key string) CounterClient {
	return CounterClient{client: c, key: key}
}

// Target returns the ingress target of handler on this counter.
func (c CounterClient) Target(handler string) ingress.Target {
	return ingress.Target{Service: Counter, Key: c.key, Handler: handler}
}

func (c CounterClient) Add(ctx context.Context, value int64) (CounterUpdateResponse, error) {
	var resp CounterUpdateResponse
	err := c.client.Call(ctx, c.Target("add"), value, &resp)
	return resp, err
}

func (c CounterClient) Get(ctx context.Context) (int64, error) {
	var value int64
	err := c.client.Call(ctx, c.Target("get"), nil, &value)
	return value, err
}

func (c CounterClient) Reset(ctx context.Context) error {
	return c.client.Call(ctx, c.Target("reset"), nil, nil)
}

// MapEntry is a key/value pair stored by MapObject.
type MapEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// MapObjectClient invokes the MapObject virtual object with a fixed key.
type MapObjectClient struct {
	client *ingress.Client
	key    string
}

func NewMapObjectClient(c *ingress.Client, key string) MapObjectClient {
	return MapObjectClient{client: c, key: key}
}

func (m MapObjectClient) target(handler string) ingress.Target {
	return ingress.Target{Service: MapObject, Key: m.key, Handler: handler}
}

func (m MapObjectClient) Set(ctx context.Context, entry MapEntry) error {
	return m.client.Call(ctx, m.target("set"), entry, nil)
}

func (m MapObjectClient) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := m.client.Call(ctx, m.target("get"), key, &value)
	return value, err
}

// ClearAll removes every entry and returns what was stored.
func (m MapObjectClient) ClearAll(ctx context.Context) ([]MapEntry, error) {
	var entries []MapEntry
	err := m.client.Call(ctx, m.target("clearAll"), nil, &entries)
	return entries, err
}

// AwakeableHolderClient invokes the AwakeableHolder virtual object, which
// stores the id of an awakeable created by another invocation so that the
// test can complete it.
type AwakeableHolderClient struct {
	client *ingress.Client
	key    string
}

func NewAwakeableHolderClient(c *ingress.Client, key string) AwakeableHolderClient {
	return AwakeableHolderClient{client: c, key: key}
}

func (a AwakeableHolderClient) target(handler string) ingress.Target {
	return ingress.Target{Service: AwakeableHolder, Key: a.key, Handler: handler}
}

func (a AwakeableHolderClient) HasAwakeable(ctx context.Context) (bool, error) {
	var has bool
	err := a.client.Call(ctx, a.target("hasAwakeable"), nil, &has)
	return has, err
}

// Unlock completes the held awakeable with payload.
func (a AwakeableHolderClient) Unlock(ctx context.Context, payload string) error {
	return a.client.Call(ctx, a.target("unlock"), payload, nil)
}

// ProxyRequest describes a call the Proxy service forwards.
type ProxyRequest struct {
	ServiceName      string `json:"serviceName"`
	VirtualObjectKey string `json:"virtualObjectKey,omitempty"`
	HandlerName      string `json:"handlerName"`
	Message          []byte `json:"message"`
	DelayMillis      int64  `json:"delayMillis,omitempty"`
}

// ProxyClient invokes the Proxy service.
type ProxyClient struct {
	client *ingress.Client
}

func NewProxyClient(c *ingress.Client) ProxyClient {
	return ProxyClient{client: c}
}

// Call forwards req as a request-response call and returns the raw result.
func (p ProxyClient) Call(ctx context.Context, req ProxyRequest) ([]byte, error) {
	var out []byte
	err := p.client.Call(ctx, ingress.Target{Service: Proxy, Handler: "call"}, req, &out)
	return out, err
}

// OneWayCall forwards req as a one-way call and returns the id of the
// invocation the proxy started.
func (p ProxyClient) OneWayCall(ctx context.Context, req ProxyRequest) (string, error) {
	var id string
	err := p.client.Call(ctx, ingress.Target{Service: Proxy, Handler: "oneWayCall"}, req, &id)
	return id, err
}

// UpgradeTestClient invokes the UpgradeTest service, which reports the value
// of E2E_UPGRADETEST_VERSION of the deployment that ran the invocation.
type UpgradeTestClient struct {
	client *ingress.Client
}

func NewUpgradeTestClient(c *ingress.Client) UpgradeTestClient {
	return UpgradeTestClient{client: c}
}

// ExecuteSimple returns the version immediately.
func (u UpgradeTestClient) ExecuteSimple(ctx context.Context) (string, error) {
	var version string
	err := u.client.Call(ctx, u.Target("executeSimple"), nil, &version)
	return version, err
}

// Target returns the ingress target of handler.
func (u UpgradeTestClient) Target(handler string) ingress.Target {
	return ingress.Target{Service: UpgradeTest, Handler: handler}
}

// UpgradeVersionEnv is the env var of a service container that UpgradeTest
// reports as its version.
const UpgradeVersionEnv = "E2E_UPGRADETEST_VERSION"

// UpgradeHolderKey is the AwakeableHolder key used by UpgradeTest.executeComplex.
const UpgradeHolderKey = "upgrade"

// BlockingOperation selects where CancelTestRunner blocks.
type BlockingOperation string

const (
	BlockOnCall      BlockingOperation = "CALL"
	BlockOnSleep     BlockingOperation = "SLEEP"
	BlockOnAwakeable BlockingOperation = "AWAKEABLE"
)

// CancelTestClient drives CancelTestRunner.
type CancelTestClient struct {
	client *ingress.Client
	key    string
}

func NewCancelTestClient(c *ingress.Client, key string) CancelTestClient {
	return CancelTestClient{client: c, key: key}
}

// StartTarget is the target to send to when starting a blocking test invocation.
func (c CancelTestClient) StartTarget() ingress.Target {
	return ingress.Target{Service: CancelTestRunner, Key: c.key, Handler: "startTest"}
}

// VerifyTest reports whether the runner observed its cancellation.
func (c CancelTestClient) VerifyTest(ctx context.Context) (bool, error) {
	var ok bool
	err := c.client.Call(ctx, ingress.Target{Service: CancelTestRunner, Key: c.key, Handler: "verifyTest"}, nil, &ok)
	return ok, err
}

// KillTestClient drives KillTestRunner and KillTestSingleton.
type KillTestClient struct {
	client *ingress.Client
	key    string
}

func NewKillTestClient(c *ingress.Client, key string) KillTestClient {
	return KillTestClient{client: c, key: key}
}

// StartTarget is the target to send to when starting the call tree.
func (k KillTestClient) StartTarget() ingress.Target {
	return ingress.Target{Service: KillTestRunner, Key: k.key, Handler: "startCallTree"}
}

// IsUnlocked reports whether the singleton object is free again.
func (k KillTestClient) IsUnlocked(ctx context.Context) (bool, error) {
	var ok bool
	err := k.client.Call(ctx, ingress.Target{Service: KillTestSingleton, Key: k.key, Handler: "isUnlocked"}, nil, &ok)
	return ok, err
}

// FailingClient invokes the Failing virtual object.
type FailingClient struct {
	client *ingress.Client
	key    string
}

func NewFailingClient(c *ingress.Client, key string) FailingClient {
	return FailingClient{client: c, key: key}
}

// TerminallyFailingCall fails with errorMessage as a terminal error.
func (f FailingClient) TerminallyFailingCall(ctx context.Context, errorMessage string) error {
	return f.client.Call(ctx, ingress.Target{Service: Failing, Key: f.key, Handler: "terminallyFailingCall"}, errorMessage, nil)
}
