package inventory

import (
	"regexp"
	"strings"
)

// mDNSTLSDiscriminator marks a device-name that is the mDNS-TLS pairing
// advertisement rather than an actual adb transport; §4.4 says to skip
// these entirely.
const mDNSTLSDiscriminator = "._adb-tls-connect._tcp"

// wifiSerial matches a Wi-Fi transport serial of the form IPv4:port.
var wifiSerial = regexp.MustCompile(`^(\d{1,3}\.){3}\d{1,3}:\d{1,5}$`)

// Transport classifies a serial as seen on the track-devices stream.
type Transport int

const (
	TransportUSB Transport = iota
	TransportWiFi
)

// ClassifySerial reports whether serial should be skipped (mDNS-TLS
// discriminator) and, if not, which transport it belongs to.
func ClassifySerial(serial string) (transport Transport, skip bool) {
	if strings.Contains(serial, mDNSTLSDiscriminator) {
		return 0, true
	}
	if wifiSerial.MatchString(serial) {
		return TransportWiFi, false
	}
	return TransportUSB, false
}
