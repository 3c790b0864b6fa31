package domain

// Capabilities is the statically resolved capability set of a gateway
// adapter, fixed at construction. Feature checks read these flags instead
// of probing the adapter at runtime.
type Capabilities struct {
	CreditCard        bool
	ECheck            bool
	Capture           bool
	PartialCapture    bool
	Refund            bool
	Void              bool
	Tokenization      bool
	TokenEditing      bool
	RemoteTokenUpdate bool
	DetailedDecline   bool
	Hosted            bool
	ZeroAmountAuth    bool
}
