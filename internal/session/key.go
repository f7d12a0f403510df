// Package session provides session-key parsing and the persistent store of
// last-known delivery routes per session.
package session

import "strings"

// Key is the parsed form of a session key.
//
// Keys follow the "agent:<agentId>:<rest>" convention, e.g.
// "agent:main:telegram:group:-100123". Keys without the prefix have an
// empty Agent and the whole key as Rest.
type Key struct {
	Agent string
	Rest  string
}

func ParseKey(raw string) Key {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Key{}
	}
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) >= 2 && parts[0] == "agent" && parts[1] != "" {
		k := Key{Agent: parts[1]}
		if len(parts) == 3 {
			k.Rest = parts[2]
		}
		return k
	}
	return Key{Rest: raw}
}
