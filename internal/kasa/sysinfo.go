package kasa

import "strings"

// SysInfo is the subset of system.get_sysinfo used by the tools.
type SysInfo struct {
	Alias           string      `json:"alias"`
	Model           string      `json:"model"`
	DeviceID        string      `json:"deviceId"`
	HardwareID      string      `json:"hwId"`
	MAC             string      `json:"mac"`
	Type            string      `json:"type"`
	MicType         string      `json:"mic_type"`
	SoftwareVersion string      `json:"sw_ver"`
	HardwareVersion string      `json:"hw_ver"`
	RelayState      int         `json:"relay_state"`
	LedOff          int         `json:"led_off"`
	OnTime          int         `json:"on_time"`
	ChildNum        int         `json:"child_num"`
	Children        []ChildInfo `json:"children"`
}

// ChildInfo describes one outlet of a strip.
type ChildInfo struct {
	ID     string `json:"id"`
	Alias  string `json:"alias"`
	State  int    `json:"state"`
	OnTime int    `json:"on_time"`
}

// IsStrip reports whether the device exposes individually switchable children.
func (s *SysInfo) IsStrip() bool {
	return len(s.Children) > 0
}

// IsOn reports the relay state of a single-outlet device.
func (s *SysInfo) IsOn() bool {
	return s.RelayState == 1
}

// ChildID returns the identifier to put in a child context. Some firmware
// reports only the two digit outlet index, which must be appended to the
// device id.
func (s *SysInfo) ChildID(child ChildInfo) string {
	if len(child.ID) <= 2 && !strings.HasPrefix(child.ID, s.DeviceID) {
		return s.DeviceID + child.ID
	}

	return child.ID
}

// FindChild returns the child with the given alias.
func (s *SysInfo) FindChild(alias string) (ChildInfo, bool) {
	for _, child := range s.Children {
		if child.Alias == alias {
			return child, true
		}
	}

	return ChildInfo{}, false
}

// IsOn reports the relay state of the outlet.
func (c ChildInfo) IsOn() bool {
	return c.State == 1
}
