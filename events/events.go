package events

const (
	TypeServerInfo = "server.info"

	TypeSystemState      = "handsfree.system_state"
	TypeGatewayAdded     = "handsfree.ag_added"
	TypeGatewayRemoved   = "handsfree.ag_removed"
	TypeInquiryResult    = "inquiry.result"
	TypeInquiryState     = "inquiry.state"
	TypeGatewayState     = "ag.state"
	TypeGatewayCall      = "ag.call_state"
	TypeGatewayAudio     = "ag.audio_state"
	TypeGatewayRing      = "ag.ring"
	TypeGatewayIndicator = "ag.indicator"
	TypeGatewayName      = "ag.name_resolved"
	TypeGatewayAutoConn  = "ag.autoreconnect"
	TypeSoundState       = "soundio.state"
	TypeSoundAborted     = "soundio.stream_aborted"
	TypeSoundMute        = "soundio.mute"
	TypeSoundGateway     = "soundio.ag_set"
	TypeSoundSkew        = "soundio.skew"
	TypeSoundMonitor     = "soundio.monitor"
)

// SourceTypes maps an event source name to the event types it emits.
var SourceTypes = map[string][]string{
	"handsfree": {TypeSystemState, TypeGatewayAdded, TypeGatewayRemoved},
	"inquiry":   {TypeInquiryResult, TypeInquiryState},
	"ag": {
		TypeGatewayState, TypeGatewayCall, TypeGatewayAudio, TypeGatewayRing,
		TypeGatewayIndicator, TypeGatewayName, TypeGatewayAutoConn,
	},
	"soundio": {
		TypeSoundState, TypeSoundAborted, TypeSoundMute, TypeSoundGateway,
		TypeSoundSkew, TypeSoundMonitor,
	},
}

type Event struct {
	Type string
	Data any
}

// FilterTypes returns a filter passing only the given types, or nil when
// types is empty.
func FilterTypes(types []string) func(Event) bool {
	if len(types) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return func(e Event) bool {
		_, ok := set[e.Type]
		return ok
	}
}

// FilterSource resolves source names through SourceTypes. Unknown names are
// ignored; nil is returned when nothing resolves.
func FilterSource(names []string) func(Event) bool {
	var types []string
	for _, n := range names {
		types = append(types, SourceTypes[n]...)
	}
	return FilterTypes(types)
}

// NewFilter combines include and exclude lists. A nil result passes all.
func NewFilter(include, exclude []string) func(Event) bool {
	inc := FilterTypes(include)
	if len(exclude) == 0 {
		return inc
	}
	ex := make(map[string]struct{}, len(exclude))
	for _, t := range exclude {
		ex[t] = struct{}{}
	}
	return func(e Event) bool {
		if _, skip := ex[e.Type]; skip {
			return false
		}
		return inc == nil || inc(e)
	}
}
