package finding

import (
	"strconv"
	"strings"
)

// Detail is the typed variant of a finding payload, selected by Kind.
// The set of implementations is closed.
type Detail interface {
	kind() Kind
}

// NetworkService is an open port with an optional service banner.
type NetworkService struct {
	Port    int
	Service string
	Version string
}

// WebVulnerability is a vulnerable web endpoint.
type WebVulnerability struct {
	URL       string
	Parameter string
}

// BluetoothDevice is a sighted Bluetooth device.
type BluetoothDevice struct {
	DeviceID string
	Name     string
}

// Vulnerability is a CVE matched against a service on the target.
type Vulnerability struct {
	CVEID   string
	Port    int
	Service string
	Version string
}

// DeviceCorrelation links the target to a second target believed to be
// the same device or site.
type DeviceCorrelation struct {
	Secondary string
}

// AttackOpportunity asserts that a combination of findings enables a
// further technique.
type AttackOpportunity struct {
	Pattern     string
	Description string
}

// CredentialLeak is a discovered credential.
type CredentialLeak struct {
	Username string
	Password string
	Service  string
	Port     int
	Verified bool
}

func (NetworkService) kind() Kind    { return KindNetworkService }
func (WebVulnerability) kind() Kind  { return KindWebVulnerability }
func (BluetoothDevice) kind() Kind   { return KindBluetoothDevice }
func (Vulnerability) kind() Kind     { return KindVulnerability }
func (DeviceCorrelation) kind() Kind { return KindDeviceCorrelation }
func (AttackOpportunity) kind() Kind { return KindAttackOpportunity }
func (CredentialLeak) kind() Kind    { return KindCredentialLeak }

// Decode validates payload against the keys required by kind and returns
// the typed detail.
func Decode(kind Kind, payload map[string]string) (Detail, error) {
	get := func(key string) string {
		return strings.TrimSpace(payload[key])
	}
	require := func(key string) (string, error) {
		v := get(key)
		if v == "" {
			return "", invalid(kind, key, ErrMalformedPayload)
		}
		return v, nil
	}

	switch kind {
	case KindNetworkService:
		port, err := requirePort(kind, payload)
		if err != nil {
			return nil, err
		}
		return NetworkService{Port: port, Service: get(KeyService), Version: get(KeyVersion)}, nil

	case KindWebVulnerability:
		u, err := require(KeyURL)
		if err != nil {
			return nil, err
		}
		return WebVulnerability{URL: u, Parameter: get(KeyParameter)}, nil

	case KindBluetoothDevice:
		id, err := require(KeyDeviceID)
		if err != nil {
			return nil, err
		}
		return BluetoothDevice{DeviceID: id, Name: get(KeyDeviceName)}, nil

	case KindVulnerability:
		id, err := require(KeyCVE)
		if err != nil {
			return nil, err
		}
		port, err := optionalPort(kind, payload)
		if err != nil {
			return nil, err
		}
		return Vulnerability{CVEID: id, Port: port, Service: get(KeyService), Version: get(KeyVersion)}, nil

	case KindDeviceCorrelation:
		sec, err := require(KeySecondary)
		if err != nil {
			return nil, err
		}
		return DeviceCorrelation{Secondary: sec}, nil

	case KindAttackOpportunity:
		p, err := require(KeyPattern)
		if err != nil {
			return nil, err
		}
		return AttackOpportunity{Pattern: p, Description: get(KeyDescription)}, nil

	case KindCredentialLeak:
		user, err := require(KeyUsername)
		if err != nil {
			return nil, err
		}
		svc, err := require(KeyService)
		if err != nil {
			return nil, err
		}
		port, err := optionalPort(kind, payload)
		if err != nil {
			return nil, err
		}
		verified, _ := strconv.ParseBool(get(KeyVerified))
		return CredentialLeak{
			Username: user,
			Password: payload[KeyPassword], // may legitimately be blank or padded
			Service:  svc,
			Port:     port,
			Verified: verified,
		}, nil
	}

	return nil, invalid(kind, "", ErrUnknownKind)
}

func requirePort(kind Kind, payload map[string]string) (int, error) {
	raw := strings.TrimSpace(payload[KeyPort])
	if raw == "" {
		return 0, invalid(kind, KeyPort, ErrMalformedPayload)
	}
	return parsePort(kind, raw)
}

func optionalPort(kind Kind, payload map[string]string) (int, error) {
	raw := strings.TrimSpace(payload[KeyPort])
	if raw == "" {
		return 0, nil
	}
	return parsePort(kind, raw)
}

func parsePort(kind Kind, raw string) (int, error) {
	port, err := strconv.Atoi(raw)
	if err != nil || port < 1 || port > 65535 {
		return 0, invalid(kind, KeyPort, ErrMalformedPayload)
	}
	return port, nil
}
