// Package wire defines the byte encodings used on the live stream and the
// retrieval transport.
package wire

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec marshals values to a wire encoding.
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Codec names.
const (
	MsgpackName = "msgpack"
	CBORName    = "cbor"
)

// DefaultCodec is used when no codec is configured.
var DefaultCodec Codec = Msgpack{}

// Msgpack encodes with vmihailenco/msgpack using msgpack struct tags.
type Msgpack struct{}

// Name returns "msgpack".
func (Msgpack) Name() string { return MsgpackName }

// Marshal encodes v.
func (Msgpack) Marshal(v any) ([]byte, error) { return msgpack.Marshal(v) }

// Unmarshal decodes data into v.
func (Msgpack) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	// Core deterministic encoding: sorted keys, shortest integers.
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("wire: CBOR encoder initialization failed: " + err.Error())
	}
	cborDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("wire: CBOR decoder initialization failed: " + err.Error())
	}
}

// CBOR encodes with fxamacker/cbor. Struct fields use their json tags.
type CBOR struct{}

// Name returns "cbor".
func (CBOR) Name() string { return CBORName }

// Marshal encodes v.
func (CBOR) Marshal(v any) ([]byte, error) { return cborEnc.Marshal(v) }

// Unmarshal decodes data into v.
func (CBOR) Unmarshal(data []byte, v any) error { return cborDec.Unmarshal(data, v) }

var codecs = map[string]Codec{
	MsgpackName: Msgpack{},
	CBORName:    CBOR{},
}

// Lookup returns the codec registered under name. An empty name selects
// DefaultCodec.
func Lookup(name string) (Codec, error) {
	if name == "" {
		return DefaultCodec, nil
	}
	c, ok := codecs[name]
	if !ok {
		return nil, fmt.Errorf("unknown codec %q (valid: %v)", name, Names())
	}
	return c, nil
}

// Names returns the registered codec names, sorted.
func Names() []string {
	names := make([]string, 0, len(codecs))
	for n := range codecs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
