package ledger

import "github.com/fxamacker/cbor/v2"

// encMode uses Core Deterministic Encoding so the same state always encodes
// to the same bytes.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("ledger: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("ledger: CBOR decoder initialization failed: " + err.Error())
	}
}

// stateVersion is bumped whenever the persisted layout changes. Older states
// are discarded, which only costs one full reprocess.
const stateVersion = 1

type record struct {
	Fingerprint Fingerprint `cbor:"1,keyasint"`
	Outputs     []string    `cbor:"2,keyasint,omitempty"`
}

type aggregate struct {
	Digest  string                 `cbor:"1,keyasint"`
	Inputs  map[string]Fingerprint `cbor:"2,keyasint,omitempty"`
	Outputs []string               `cbor:"3,keyasint,omitempty"`
}

type state struct {
	Version    int                  `cbor:"1,keyasint"`
	Inputs     map[string]record    `cbor:"2,keyasint,omitempty"`
	Aggregates map[string]aggregate `cbor:"3,keyasint,omitempty"`
}

func newState() state {
	return state{
		Version:    stateVersion,
		Inputs:     make(map[string]record),
		Aggregates: make(map[string]aggregate),
	}
}

func decodeState(data []byte) (state, bool) {
	var s state
	if err := decMode.Unmarshal(data, &s); err != nil || s.Version != stateVersion {
		return newState(), false
	}
	if s.Inputs == nil {
		s.Inputs = make(map[string]record)
	}
	if s.Aggregates == nil {
		s.Aggregates = make(map[string]aggregate)
	}
	return s, true
}
