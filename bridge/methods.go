// Package bridge routes named method calls to the gateway services.
// Both the HTTP bridge endpoint and the WebSocket channel dispatch through it.
package bridge

import "strings"

// NamespacePrefix is accepted in front of every method name for the companion integration
const NamespacePrefix = "ferbos/"

// Method identifies one bridge operation
type Method int

const (
	MethodUnknown Method = iota
	MethodQuery
	MethodAppendLines
	MethodInsertFile
	MethodTables
	MethodSchema
	MethodEntities
	MethodStates
	MethodEvents
	MethodStatus
	MethodInfo
	MethodHealth
	MethodPing
	MethodWSConnect
	MethodWSStatus
)

// methods lists the known methods in the order they are advertised
var methods = []struct {
	method Method
	name   string
}{
	{MethodStatus, "status"},
	{MethodInfo, "info"},
	{MethodHealth, "health"},
	{MethodPing, "ping"},
	{MethodTables, "tables"},
	{MethodEntities, "entities"},
	{MethodStates, "states"},
	{MethodEvents, "events"},
	{MethodQuery, "query"},
	{MethodSchema, "schema"},
	{MethodAppendLines, "config/append_lines"},
	{MethodInsertFile, "config/insert_file"},
	{MethodWSConnect, "ws/connect"},
	{MethodWSStatus, "ws/status"},
}

// ParseMethod resolves a method name, with or without the namespace prefix
func ParseMethod(name string) (Method, bool) {
	name = strings.TrimPrefix(strings.TrimSpace(name), NamespacePrefix)
	for _, m := range methods {
		if m.name == name {
			return m.method, true
		}
	}
	return MethodUnknown, false
}

// String returns the unprefixed method name
func (m Method) String() string {
	for _, entry := range methods {
		if entry.method == m {
			return entry.name
		}
	}
	return "unknown"
}

// RateLimited reports whether calls count against the caller's rate limit.
// Only the status methods, which touch neither the database nor the configuration, are exempt.
func (m Method) RateLimited() bool {
	switch m {
	case MethodStatus, MethodInfo, MethodHealth, MethodPing, MethodWSConnect, MethodWSStatus:
		return false
	default:
		return true
	}
}

// MethodNames returns every method with the namespace prefix, as advertised to clients
func MethodNames() []string {
	names := make([]string, 0, len(methods))
	for _, m := range methods {
		names = append(names, NamespacePrefix+m.name)
	}
	return names
}
