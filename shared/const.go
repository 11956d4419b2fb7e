package shared

const (
	OperatorID = "operator_id"
	ClientIP   = "client_ip"

	StatusGoodBot     = "good_bot"
	StatusBadBot      = "bad_bot"
	StatusWhitelisted = "whitelisted"
	StatusBlocked     = "blocked"
	StatusAllowed     = "allowed"

	UserAgentUnknown = "unknown"
	UserAgentMaxLen  = 500

	RateWindowSeconds = 60
)

// Every persisted event carries exactly one of these.
var EventStatuses = []string{
	StatusGoodBot,
	StatusBadBot,
	StatusWhitelisted,
	StatusBlocked,
	StatusAllowed,
}

// NormalizeStatus coerces unrecognized status input to StatusAllowed so a bad
// value never fails the write path.
func NormalizeStatus(status string) string {
	for _, s := range EventStatuses {
		if status == s {
			return s
		}
	}
	return StatusAllowed
}
