package strip

import (
	"fmt"
	"strings"
)

// switchOnToken is the only token that turns outlets on; anything else turns them off.
const switchOnToken = "on"

// ParseSwitch maps the desired-state argument to a power state. The
// comparison is case-insensitive and exact: "ON" and "On" mean on,
// while "off", "xyz", "" and " on" all mean off.
func ParseSwitch(token string) bool {
	return strings.EqualFold(token, switchOnToken)
}

// StateName renders a power state for logs and output.
func StateName(on bool) string {
	if on {
		return "on"
	}

	return "off"
}

// Actor identifies who requested a change.
type Actor struct {
	// Hostname is the machine name where the command was run.
	Hostname string
	// Username is the system user who ran it, typically the cron owner.
	Username string
}

// String formats the actor as username@hostname.
func (a *Actor) String() string {
	if a == nil {
		return "<unknown>"
	}

	return fmt.Sprintf("%s@%s", a.Username, a.Hostname)
}

// Plug is one switchable outlet.
type Plug struct {
	// ID is the child id used to address the outlet, empty for a standalone plug.
	ID string
	// Alias is the outlet name.
	Alias string
	// IsOn is the relay state at the time the device was read.
	IsOn bool
}

// Strip is a multi-outlet device resolved for one invocation.
type Strip struct {
	// Alias is the name the strip reports.
	Alias string
	// Address is the host:port the strip is reached at.
	Address string
	// Model is the hardware model, e.g. HS300(US).
	Model string
	// Plugs are the outlets in device order.
	Plugs []Plug
}

// Mismatched returns the plugs whose state differs from on.
func (s *Strip) Mismatched(on bool) []Plug {
	var plugs []Plug

	for _, plug := range s.Plugs {
		if plug.IsOn != on {
			plugs = append(plugs, plug)
		}
	}

	return plugs
}
