// Package services declares the test services hosted by the service image and
// typed clients to invoke them through the ingress.
//
// The handlers themselves live in the service image. This package only knows
// their names, payload shapes and which of them are keyed.
package services

import (
	"slices"

	"github.com/google/uuid"
)

// Service names as registered with the runtime.
const (
	Counter                   = "Counter"
	Proxy                     = "Proxy"
	MapObject                 = "MapObject"
	AwakeableHolder           = "AwakeableHolder"
	UpgradeTest               = "UpgradeTest"
	KillTestRunner            = "KillTestRunner"
	KillTestSingleton         = "KillTestSingleton"
	CancelTestRunner          = "CancelTestRunner"
	CancelTestBlockingService = "CancelTestBlockingService"
	Failing                   = "Failing"
)

// Info describes a known test service.
type Info struct {
	Name string
	// Keyed services are virtual objects addressed by a key.
	Keyed bool
}

var known = []Info{
	{Name: Counter, Keyed: true},
	{Name: Proxy},
	{Name: MapObject, Keyed: true},
	{Name: AwakeableHolder, Keyed: true},
	{Name: UpgradeTest},
	{Name: KillTestRunner, Keyed: true},
	{Name: KillTestSingleton, Keyed: true},
	{Name: CancelTestRunner, Keyed: true},
	{Name: CancelTestBlockingService, Keyed: true},
	{Name: Failing, Keyed: true},
}

// IsKnown reports whether name is a service hosted by the service image.
func IsKnown(name string) bool {
	_, ok := Lookup(name)
	return ok
}

// Lookup returns the description of the named service.
func Lookup(name string) (Info, bool) {
	i := slices.IndexFunc(known, func(info Info) bool { return info.Name == name })
	if i < 0 {
		return Info{}, false
	}
	return known[i], true
}

// Names returns the names of all known services.
func Names() []string {
	names := make([]string, 0, len(known))
	for _, info := range known {
		names = append(names, info.Name)
	}
	return names
}

// RandomKey returns a fresh object key. Tests sharing a deployment use random
// keys so they never observe each other's state.
func RandomKey() string {
	return uuid.NewString()
}
