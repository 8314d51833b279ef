package cryptox

import (
	"encoding/hex"
	"fmt"

	"github.com/dmitrijs2005/diarykeeper/internal/common"
	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

const EnvelopeVersion uint8 = 1

// Envelope is one sealed record: it carries everything but the key needed to
// authenticate and decrypt. Envelopes are never modified after Seal.
type Envelope struct {
	Version    uint8
	Algorithm  Algorithm
	Nonce      []byte
	Ciphertext []byte
	Tag        []byte
}

// wireEnvelope is the persisted form: a CBOR map with small integer keys.
type wireEnvelope struct {
	Version    uint8     `cbor:"1,keyasint"`
	Algorithm  Algorithm `cbor:"2,keyasint"`
	Nonce      []byte    `cbor:"3,keyasint"`
	Ciphertext []byte    `cbor:"4,keyasint"`
	Tag        []byte    `cbor:"5,keyasint"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("cryptox: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic("cryptox: CBOR decoder initialization failed: " + err.Error())
	}
}

// MarshalBinary encodes the envelope with CBOR core deterministic encoding,
// so equal envelopes always serialize to equal bytes.
func (e *Envelope) MarshalBinary() ([]byte, error) {
	return encMode.Marshal(wireEnvelope(*e))
}

// UnmarshalBinary decodes data produced by MarshalBinary. Malformed input
// and unknown versions are integrity failures.
func (e *Envelope) UnmarshalBinary(data []byte) error {
	var w wireEnvelope
	if err := decMode.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode envelope: %v: %w", err, common.ErrIntegrity)
	}
	if w.Version != EnvelopeVersion {
		return fmt.Errorf("envelope version %d: %w", w.Version, common.ErrIntegrity)
	}
	*e = Envelope(w)
	return nil
}

// ContentHash is the hex BLAKE3-256 digest of the serialized envelope.
func ContentHash(e *Envelope) (string, error) {
	b, err := e.MarshalBinary()
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Size is the number of plaintext bytes the envelope carries.
func (e *Envelope) Size() int {
	return len(e.Ciphertext)
}
