// Package core provides the module system foundation for nudgeme.
package core

import "strings"

// ModuleID is a dotted identifier such as "storage.sqlite" where the first
// segment is the namespace and the remainder the module name.
type ModuleID string

// Namespace returns the segment before the first dot.
func (id ModuleID) Namespace() string {
	ns, _, _ := strings.Cut(string(id), ".")
	return ns
}

// Name returns the segment after the first dot, or the whole ID when it has none.
func (id ModuleID) Name() string {
	_, name, ok := strings.Cut(string(id), ".")
	if !ok {
		return string(id)
	}
	return name
}

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	ID  ModuleID
	New func() Module
}

// Module is implemented by every module compiled into the binary.
type Module interface {
	ModuleInfo() ModuleInfo
}
