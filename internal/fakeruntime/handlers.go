package fakeruntime

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"conformance/internal/ingress"
	"conformance/internal/services"
)

type handler func(r *Runtime, inv *invocation, body []byte) (any, error)

// handler resolves the implementation of a test service handler.
func (r *Runtime) handler(service, name string) (handler, bool) {
	var h handler
	switch service {
	case services.Counter:
		switch name {
		case "add":
			h = (*Runtime).counterAdd
		case "get":
			h = (*Runtime).counterGet
		case "reset":
			h = (*Runtime).counterReset
		}
	case services.MapObject:
		switch name {
		case "set":
			h = (*Runtime).mapSet
		case "get":
			h = (*Runtime).mapGet
		case "clearAll":
			h = (*Runtime).mapClearAll
		}
	case services.AwakeableHolder:
		switch name {
		case "hasAwakeable":
			h = (*Runtime).holderHasAwakeable
		case "unlock":
			h = (*Runtime).holderUnlock
		}
	case services.Proxy:
		switch name {
		case "call":
			h = (*Runtime).proxyCall
		case "oneWayCall":
			h = (*Runtime).proxyOneWayCall
		}
	case services.UpgradeTest:
		switch name {
		case "executeSimple":
			h = (*Runtime).upgradeExecuteSimple
		case "executeComplex":
			h = (*Runtime).upgradeExecuteComplex
		}
	case services.KillTestRunner:
		if name == "startCallTree" {
			h = (*Runtime).killStartCallTree
		}
	case services.KillTestSingleton:
		if name == "isUnlocked" {
			h = (*Runtime).killIsUnlocked
		}
	case services.CancelTestRunner:
		switch name {
		case "startTest":
			h = (*Runtime).cancelStartTest
		case "verifyTest":
			h = (*Runtime).cancelVerifyTest
		}
	case services.Failing:
		if name == "terminallyFailingCall" {
			h = (*Runtime).failingTerminallyFailingCall
		}
	}
	return h, h != nil
}

func decode(body []byte, v any) error {
	if len(body) == 0 {
		return &terminalError{Code: http.StatusBadRequest, Message: "missing request body"}
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &terminalError{Code: http.StatusBadRequest, Message: "malformed request body: " + err.Error()}
	}
	return nil
}

func (r *Runtime) counterAdd(inv *invocation, body []byte) (any, error) {
	var delta int64
	if err := decode(body, &delta); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.counters[inv.target.Key]
	r.counters[inv.target.Key] = old + delta
	return services.CounterUpdateResponse{OldValue: old, NewValue: old + delta}, nil
}

func (r *Runtime) counterGet(inv *invocation, _ []byte) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[inv.target.Key], nil
}

func (r *Runtime) counterReset(inv *invocation, _ []byte) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.counters, inv.target.Key)
	return nil, nil
}

func (r *Runtime) mapSet(inv *invocation, body []byte) (any, error) {
	var entry services.MapEntry
	if err := decode(body, &entry); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.maps[inv.target.Key]
	if m == nil {
		m = make(map[string]string)
		r.maps[inv.target.Key] = m
	}
	m[entry.Key] = entry.Value
	return nil, nil
}

func (r *Runtime) mapGet(inv *invocation, body []byte) (any, error) {
	var key string
	if err := decode(body, &key); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maps[inv.target.Key][key], nil
}

func (r *Runtime) mapClearAll(inv *invocation, _ []byte) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := make([]services.MapEntry, 0, len(r.maps[inv.target.Key]))
	for k, v := range r.maps[inv.target.Key] {
		entries = append(entries, services.MapEntry{Key: k, Value: v})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	delete(r.maps, inv.target.Key)
	return entries, nil
}

func (r *Runtime) holderHasAwakeable(inv *invocation, _ []byte) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.awakeables[inv.target.Key] != nil, nil
}

func (r *Runtime) holderUnlock(inv *invocation, body []byte) (any, error) {
	var payload string
	if err := decode(body, &payload); err != nil {
		return nil, err
	}
	r.mu.Lock()
	ch := r.awakeables[inv.target.Key]
	delete(r.awakeables, inv.target.Key)
	r.mu.Unlock()
	if ch == nil {
		return nil, &terminalError{Code: http.StatusBadRequest, Message: "no awakeable is held for " + inv.target.Key}
	}
	ch <- payload
	return nil, nil
}

// hold registers an awakeable with the holder object key.
func (r *Runtime) hold(key string) chan string {
	ch := make(chan string, 1)
	r.mu.Lock()
	r.awakeables[key] = ch
	r.mu.Unlock()
	return ch
}

func proxyTarget(req services.ProxyRequest) ingress.Target {
	return ingress.Target{Service: req.ServiceName, Key: req.VirtualObjectKey, Handler: req.HandlerName}
}

func (r *Runtime) proxyCall(_ *invocation, body []byte) (any, error) {
	var req services.ProxyRequest
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	child, _, err := r.submit(proxyTarget(req), req.Message, "", time.Duration(req.DelayMillis)*time.Millisecond)
	if err != nil {
		return nil, err
	}
	if !r.wait(child, nil) {
		return nil, errShutdown
	}
	if child.err != nil {
		return nil, child.err
	}
	return []byte(child.result), nil
}

func (r *Runtime) proxyOneWayCall(_ *invocation, body []byte) (any, error) {
	var req services.ProxyRequest
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	child, _, err := r.submit(proxyTarget(req), req.Message, "", time.Duration(req.DelayMillis)*time.Millisecond)
	if err != nil {
		return nil, err
	}
	return child.id, nil
}

// The version is taken from the deployment the invocation was routed to when
// it started, which stays fixed for its whole lifetime.
func (r *Runtime) upgradeExecuteSimple(inv *invocation, _ []byte) (any, error) {
	return inv.deployment.env[UpgradeVersionEnv], nil
}

func (r *Runtime) upgradeExecuteComplex(inv *invocation, _ []byte) (any, error) {
	ch := r.hold(services.UpgradeHolderKey)
	if _, err := r.block(inv, ch); err != nil {
		return nil, err
	}
	return inv.deployment.env[UpgradeVersionEnv], nil
}

func (r *Runtime) killStartCallTree(inv *invocation, _ []byte) (any, error) {
	r.mu.Lock()
	r.singletonLocks[inv.target.Key] = true
	r.mu.Unlock()

	_, err := r.block(inv, nil)

	r.mu.Lock()
	delete(r.singletonLocks, inv.target.Key)
	r.mu.Unlock()
	return nil, err
}

func (r *Runtime) killIsUnlocked(inv *invocation, _ []byte) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.singletonLocks[inv.target.Key], nil
}

func (r *Runtime) cancelStartTest(inv *invocation, body []byte) (any, error) {
	var op services.BlockingOperation
	if err := decode(body, &op); err != nil {
		return nil, err
	}
	switch op {
	case services.BlockOnCall, services.BlockOnSleep, services.BlockOnAwakeable:
	default:
		return nil, &terminalError{Code: http.StatusBadRequest, Message: "unknown blocking operation " + string(op)}
	}

	_, err := r.block(inv, nil)
	if err == errCanceled {
		r.mu.Lock()
		r.cancelObserved[inv.target.Key] = true
		r.mu.Unlock()
	}
	return nil, err
}

func (r *Runtime) cancelVerifyTest(inv *invocation, _ []byte) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelObserved[inv.target.Key], nil
}

func (r *Runtime) failingTerminallyFailingCall(_ *invocation, body []byte) (any, error) {
	var msg string
	if err := decode(body, &msg); err != nil {
		return nil, err
	}
	return nil, &terminalError{Code: http.StatusInternalServerError, Message: msg}
}
