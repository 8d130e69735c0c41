package login1

const (
	LOGIN1_PREFIX    = "org.freedesktop.login1"
	LOGIN1_PATH      = "/org/freedesktop/login1"
	LOGIN1_INTERFACE = LOGIN1_PREFIX + ".Manager"

	LOGIN1_METHOD_INHIBIT     = LOGIN1_INTERFACE + ".Inhibit"
	LOGIN1_SIGNAL_PREPARE     = "PrepareForSleep"
	LOGIN1_PREPARE_FOR_SLEEP  = LOGIN1_INTERFACE + "." + LOGIN1_SIGNAL_PREPARE
	LOGIN1_MATCH_PREPARE_RULE = "type='signal',sender='" + LOGIN1_PREFIX + "',interface='" + LOGIN1_INTERFACE + "',member='" + LOGIN1_SIGNAL_PREPARE + "'"

	inhibitWhat = "sleep"
	inhibitWhy  = "Closing Bluetooth hands-free connections"
	inhibitMode = "delay"
)
