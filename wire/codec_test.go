package wire

import (
	"bytes"
	"slices"
	"testing"
	"time"

	"github.com/pithecene-io/imagestream/types"
)

func sampleEvent() *types.Event {
	ev := types.NewEvent("frame-1", types.KindData, 2, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	ev.Data = &types.SubImage{
		SubHeader: types.SubHeader{X: 1, Y: 2, W: 2, H: 1, HCut: 3.5},
		Data:      types.PixelArray{Tag: types.ArrayI16, I16: []int16{-7, 300}},
	}
	return ev
}

func TestCodecs_EventFields(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			c, err := Lookup(name)
			if err != nil {
				t.Fatalf("Lookup failed: %v", err)
			}

			var buf bytes.Buffer
			if err := WriteValue(&buf, c, sampleEvent()); err != nil {
				t.Fatalf("WriteValue failed: %v", err)
			}
			var got types.Event
			if err := ReadValue(NewFrameDecoder(&buf), c, &got); err != nil {
				t.Fatalf("ReadValue failed: %v", err)
			}

			if err := got.Validate(); err != nil {
				t.Fatalf("decoded event invalid: %v", err)
			}
			if got.Kind != types.KindData || got.CountIn != 2 || got.FrameID != "frame-1" {
				t.Errorf("decoded = %s %d %q", got.Kind, got.CountIn, got.FrameID)
			}
			if !slices.Equal(got.Data.Data.I16, []int16{-7, 300}) {
				t.Errorf("I16 = %v, want [-7 300]", got.Data.Data.I16)
			}
			if got.Data.SubHeader.HCut != 3.5 || got.Data.SubHeader.Y != 2 {
				t.Errorf("sub header = %+v", got.Data.SubHeader)
			}
		})
	}
}

func TestCodecs_GenericMapKeys(t *testing.T) {
	for _, c := range []Codec{Msgpack{}, CBOR{}} {
		data, err := c.Marshal(map[string]any{"channel": "gpiReq", "count": 3})
		if err != nil {
			t.Fatalf("%s Marshal failed: %v", c.Name(), err)
		}
		var got map[string]any
		if err := c.Unmarshal(data, &got); err != nil {
			t.Fatalf("%s Unmarshal failed: %v", c.Name(), err)
		}
		if got["channel"] != "gpiReq" {
			t.Errorf("%s channel = %v, want gpiReq", c.Name(), got["channel"])
		}
		if _, ok := got["count"]; !ok {
			t.Errorf("%s count missing", c.Name())
		}
	}
}

func TestCBOR_Deterministic(t *testing.T) {
	a, _ := CBOR{}.Marshal(map[string]any{"b": 1, "a": 2, "c": 3})
	b, _ := CBOR{}.Marshal(map[string]any{"c": 3, "a": 2, "b": 1})
	if !bytes.Equal(a, b) {
		t.Error("CBOR encoding depends on map order")
	}
}

func TestLookup(t *testing.T) {
	c, err := Lookup("")
	if err != nil || c.Name() != MsgpackName {
		t.Errorf("Lookup(\"\") = %v, %v; want msgpack", c, err)
	}
	if _, err := Lookup("protobuf"); err == nil {
		t.Error("Lookup(protobuf) succeeded, want error")
	}
	if got := Names(); !slices.Equal(got, []string{"cbor", "msgpack"}) {
		t.Errorf("Names() = %v", got)
	}
}
