package config

import (
	"errors"
	"sync/atomic"
)

var (
	// ErrAlreadyRegistered is returned when Register is called twice.
	ErrAlreadyRegistered = errors.New("global configuration already registered")
	// ErrNotRegistered is returned when the configuration is read before Register.
	ErrNotRegistered = errors.New("global configuration not registered")
	// ErrInvalid wraps validation failures.
	ErrInvalid = errors.New("invalid configuration")
)

var current atomic.Pointer[GlobalConfig]

// Register installs the process-wide configuration. It must be called once,
// before any suite runs.
func Register(cfg GlobalConfig) error {
	c := cfg.Clone()
	if !current.CompareAndSwap(nil, &c) {
		return ErrAlreadyRegistered
	}
	return nil
}

// Current returns a copy of the registered configuration. Callers may modify
// the copy freely.
func Current() (GlobalConfig, error) {
	c := current.Load()
	if c == nil {
		return GlobalConfig{}, ErrNotRegistered
	}
	return c.Clone(), nil
}

// Replace swaps the registered configuration for cfg as a whole. Readers
// holding an earlier copy are unaffected.
func Replace(cfg GlobalConfig) error {
	c := cfg.Clone()
	for {
		old := current.Load()
		if old == nil {
			return ErrNotRegistered
		}
		if current.CompareAndSwap(old, &c) {
			return nil
		}
	}
}

// unregister clears the registered configuration. Tests only.
func unregister() {
	current.Store(nil)
}
