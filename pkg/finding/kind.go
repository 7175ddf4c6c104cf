package finding

// Kind identifies what a finding observes.
type Kind string

const (
	KindNetworkService    Kind = "network-service"
	KindWebVulnerability  Kind = "web-vulnerability"
	KindBluetoothDevice   Kind = "bluetooth-device"
	KindVulnerability     Kind = "vulnerability"
	KindDeviceCorrelation Kind = "device-correlation"
	KindAttackOpportunity Kind = "attack-opportunity"
	KindCredentialLeak    Kind = "credential-leak"
)

// Kinds returns every enumerated kind in declaration order.
func Kinds() []Kind {
	return []Kind{
		KindNetworkService,
		KindWebVulnerability,
		KindBluetoothDevice,
		KindVulnerability,
		KindDeviceCorrelation,
		KindAttackOpportunity,
		KindCredentialLeak,
	}
}

// IsValid reports whether k is one of the enumerated kinds.
func (k Kind) IsValid() bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

// Derived reports whether findings of this kind are produced by the
// engine itself rather than by tool adapters.
func (k Kind) Derived() bool {
	return k == KindAttackOpportunity || k == KindDeviceCorrelation
}

func (k Kind) String() string { return string(k) }
