package media

import "strings"

// ConnectorType classifies a physical connector on a routing node
//
// The numbering follows the usual capture-card crossbar convention: video
// connectors start at 1, audio connectors at 0x1000.
type ConnectorType int

const (
	// ConnectorUnspecified means "no routing requested"
	ConnectorUnspecified ConnectorType = 0

	ConnectorTuner           ConnectorType = 1
	ConnectorComposite       ConnectorType = 2
	ConnectorSVideo          ConnectorType = 3
	ConnectorRGB             ConnectorType = 4
	ConnectorYRYBY           ConnectorType = 5
	ConnectorSerialDigital   ConnectorType = 6
	ConnectorParallelDigital ConnectorType = 7
	ConnectorSCSI            ConnectorType = 8
	ConnectorAUX             ConnectorType = 9
	Connector1394            ConnectorType = 10
	ConnectorUSB             ConnectorType = 11
	ConnectorVideoDecoder    ConnectorType = 12
	ConnectorVideoEncoder    ConnectorType = 13
	ConnectorSCART           ConnectorType = 14
	ConnectorBlack           ConnectorType = 15

	ConnectorAudioTuner        ConnectorType = 0x1000
	ConnectorAudioLine         ConnectorType = 0x1001
	ConnectorAudioMic          ConnectorType = 0x1002
	ConnectorAudioAESDigital   ConnectorType = 0x1003
	ConnectorAudioSPDIFDigital ConnectorType = 0x1004
	ConnectorAudioSCSI         ConnectorType = 0x1005
	ConnectorAudioAUX          ConnectorType = 0x1006
	ConnectorAudio1394         ConnectorType = 0x1007
	ConnectorAudioUSB          ConnectorType = 0x1008
	ConnectorAudioDecoder      ConnectorType = 0x1009
)

var connectorNames = map[ConnectorType]string{
	ConnectorTuner:             "Tuner",
	ConnectorComposite:         "Composite",
	ConnectorSVideo:            "SVideo",
	ConnectorRGB:               "RGB",
	ConnectorYRYBY:             "YRYBY",
	ConnectorSerialDigital:     "SerialDigital",
	ConnectorParallelDigital:   "ParallelDigital",
	ConnectorSCSI:              "SCSI",
	ConnectorAUX:               "AUX",
	Connector1394:              "1394",
	ConnectorUSB:               "USB",
	ConnectorVideoDecoder:      "VideoDecoder",
	ConnectorVideoEncoder:      "VideoEncoder",
	ConnectorSCART:             "SCART",
	ConnectorBlack:             "Black",
	ConnectorAudioTuner:        "AudioTuner",
	ConnectorAudioLine:         "AudioLine",
	ConnectorAudioMic:          "AudioMic",
	ConnectorAudioAESDigital:   "AudioAESDigital",
	ConnectorAudioSPDIFDigital: "AudioSPDIFDigital",
	ConnectorAudioSCSI:         "AudioSCSI",
	ConnectorAudioAUX:          "AudioAUX",
	ConnectorAudio1394:         "Audio1394",
	ConnectorAudioUSB:          "AudioUSB",
	ConnectorAudioDecoder:      "AudioDecoder",
}

// String returns the persisted name of the connector type ("" when unspecified)
func (c ConnectorType) String() string {
	if name, ok := connectorNames[c]; ok {
		return name
	}
	return ""
}

// IsVideo reports whether c is a video connector
func (c ConnectorType) IsVideo() bool {
	return c >= ConnectorTuner && c < ConnectorAudioTuner
}

// ParseConnectorType parses a connector name
//
// Accepts the persisted names ("Composite", "SVideo", "SerialDigital"), the
// "Video_" prefixed spellings older settings files use, and a few common
// aliases ("s-video", "cvbs", "sdi"). Matching is case-insensitive.
// Unknown or empty names return ConnectorUnspecified and false, which callers
// treat as "do not route".
func ParseConnectorType(s string) (ConnectorType, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.TrimPrefix(key, "video_")
	key = strings.NewReplacer("-", "", "_", "", " ", "").Replace(key)
	if key == "" {
		return ConnectorUnspecified, false
	}

	switch key {
	case "cvbs":
		return ConnectorComposite, true
	case "svhs", "yc":
		return ConnectorSVideo, true
	case "sdi":
		return ConnectorSerialDigital, true
	case "firewire":
		return Connector1394, true
	}

	for ct, name := range connectorNames {
		if strings.ToLower(name) == key {
			return ct, true
		}
	}
	return ConnectorUnspecified, false
}
