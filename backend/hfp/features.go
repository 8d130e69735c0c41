package hfp

// Audio gateway feature bits advertised at connection setup.
const (
	FeatThreeWayCalling uint32 = 1 << iota
	FeatECNR
	FeatVoiceRecognition
	FeatInBandRingTone
	FeatVoiceTag
	FeatRejectCall
	FeatEnhancedCallStatus
	FeatEnhancedCallControl
)

// Hands-free capabilities reported to gateways.
const (
	CapECNR uint32 = 1 << iota
	CapThreeWayCalling
	CapCLIP
	CapVoiceRecognition
	CapRemoteVolume
	CapEnhancedCallStatus
	CapEnhancedCallControl

	DefaultCapabilities = CapThreeWayCalling | CapCLIP | CapEnhancedCallStatus
)

var featureBits = []struct {
	name string
	bit  uint32
}{
	{"ThreeWayCalling", FeatThreeWayCalling},
	{"ECNR", FeatECNR},
	{"VoiceRecognition", FeatVoiceRecognition},
	{"InBandRingTone", FeatInBandRingTone},
	{"VoiceTag", FeatVoiceTag},
	{"RejectCall", FeatRejectCall},
	{"EnhancedCallStatus", FeatEnhancedCallStatus},
	{"EnhancedCallControl", FeatEnhancedCallControl},
}

var featureIndicators = []struct {
	name       string
	indicators []string
}{
	{"CallSetupIndicator", []string{"callsetup", "call_setup"}},
	{"SignalStrengthIndicator", []string{"signal"}},
	{"RoamingIndicator", []string{"roam"}},
	{"BatteryChargeIndicator", []string{"battchg"}},
}

// Features is the named feature set negotiated with a gateway.
type Features map[string]bool

// negotiateFeatures derives the named features from the connection setup.
func negotiateFeatures(info SLCInfo) Features {
	f := make(Features, len(featureBits)+len(featureIndicators))
	for _, fb := range featureBits {
		f[fb.name] = info.Features&fb.bit != 0
	}
	for _, fi := range featureIndicators {
		present := false
		for _, name := range fi.indicators {
			if _, ok := info.Indicators[name]; ok {
				present = true
				break
			}
		}
		f[fi.name] = present
	}
	return f
}

// emptyFeatures reports every feature as unsupported.
func emptyFeatures() Features {
	return negotiateFeatures(SLCInfo{})
}
