package compcache

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Segments are CBOR with core deterministic encoding, so the same identity
// set and graph always produce the same container bytes.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("compcache: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("compcache: CBOR decoder initialization failed: " + err.Error())
	}
}

func marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func decode(r io.Reader, v any) error {
	return decMode.NewDecoder(r).Decode(v)
}
