package finance

// EntryType is the direction of an energy event.
type EntryType string

const (
	EntryTypeCharging    EntryType = "charging"
	EntryTypeDischarging EntryType = "discharging"
)

// IsValid checks if the type is one of the supported values.
func (t EntryType) IsValid() bool {
	switch t {
	case EntryTypeCharging, EntryTypeDischarging:
		return true
	default:
		return false
	}
}

// Sign is +1 for charging and -1 for discharging.
func (t EntryType) Sign() float64 {
	if t == EntryTypeDischarging {
		return -1
	}
	return 1
}

// Float64 returns a pointer to v, for optional inputs.
func Float64(v float64) *float64 { return &v }
