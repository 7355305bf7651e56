package wire

// Error codes sent by the server in error events.
const (
	ErrUnknownEvent       = 10000
	ErrUnknownPair        = 10001
	ErrUnknownPrecision   = 10011
	ErrUnknownLength      = 10012
	ErrSubscriptionFailed = 10300
	ErrAlreadySubscribed  = 10301
	ErrUnknownChannel     = 10302
	ErrChannelLimit       = 10305
	ErrUnsubFailed        = 10400
	ErrNotSubscribed      = 10401
)

// Info codes sent by the server in info events.
const (
	InfoServerRestart    = 20051
	InfoMaintenanceBegin = 20060
	InfoMaintenanceEnd   = 20061
)

var errorText = map[int]string{
	ErrUnknownEvent:       "unknown event",
	ErrUnknownPair:        "unknown pair",
	ErrUnknownPrecision:   "unknown book precision",
	ErrUnknownLength:      "unknown book length",
	ErrSubscriptionFailed: "subscription failed",
	ErrAlreadySubscribed:  "already subscribed",
	ErrUnknownChannel:     "unknown channel",
	ErrChannelLimit:       "reached limit of open channels",
	ErrUnsubFailed:        "unsubscription failed",
	ErrNotSubscribed:      "not subscribed",
}

var infoText = map[int]string{
	InfoServerRestart:    "websocket server restarting",
	InfoMaintenanceBegin: "entering maintenance mode",
	InfoMaintenanceEnd:   "maintenance ended",
}

// ErrorText maps a server error code to its human-readable category.
func ErrorText(code int) string {
	if s, ok := errorText[code]; ok {
		return s
	}
	return "unknown error code"
}

// InfoText maps a server info code to its human-readable category.
func InfoText(code int) string {
	if s, ok := infoText[code]; ok {
		return s
	}
	return "unknown info code"
}
