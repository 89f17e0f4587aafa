package httpapi

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/types"
)

// Wire codecs for api/campusgate/v1/access.proto.  Unknown fields are
// skipped so newer firmware can talk to an older server.

// ── Access ───────────────────────────────────────────────────────────────────

func decodeAccessCheck(b []byte) (types.AccessCheckRequest, error) {
	var req types.AccessCheckRequest
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			return consumeString(b, &req.RFIDNumber)
		case num == 2 && typ == protowire.BytesType:
			return consumeString(b, &req.Location)
		case num == 3 && typ == protowire.BytesType:
			return consumeString(b, &req.DeviceID)
		}
		return skip(num, typ, b)
	})
	return req, err
}

func encodeAccessCheck(r types.AccessCheckResponse) []byte {
	var b []byte
	b = appendBool(b, 1, r.AccessGranted)
	b = appendString(b, 2, r.Message)
	b = appendString(b, 3, r.DenialReason)
	if r.ResponseTimeMs != 0 {
		b = protowire.AppendTag(b, 4, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(r.ResponseTimeMs))
	}
	b = appendString(b, 5, r.LogID)
	if r.Person != nil {
		b = appendString(b, 6, r.Person.Name)
		b = appendString(b, 7, r.Person.Type)
	}
	return b
}

// ── Heartbeat ────────────────────────────────────────────────────────────────

func decodeHeartbeat(b []byte) (types.HeartbeatRequest, error) {
	var req types.HeartbeatRequest
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ == protowire.BytesType {
			switch num {
			case 1:
				return consumeString(b, &req.GateID)
			case 2:
				return consumeString(b, &req.FirmwareVersion)
			case 6:
				return consumeString(b, &req.IP)
			}
			return skip(num, typ, b)
		}
		if typ != protowire.VarintType {
			return skip(num, typ, b)
		}

		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return 0, protowire.ParseError(n)
		}
		switch num {
		case 3:
			req.UptimeSeconds = v
		case 4:
			closed := protowire.DecodeBool(v)
			req.DoorClosed = &closed
		case 5:
			rssi := int(int32(v))
			req.RSSIDbm = &rssi
		case 7:
			req.FreeHeapBytes = uint32(v)
		case 8:
			req.Sequence = uint32(v)
		}
		return n, nil
	})
	return req, err
}

func encodeHeartbeat(r types.HeartbeatResponse) []byte {
	var b []byte
	b = appendBool(b, 1, r.OK)
	b = appendBool(b, 2, r.Known)
	b = appendString(b, 3, r.GateID)
	b = appendString(b, 4, r.ServerTime)
	return b
}

// ── helpers ──────────────────────────────────────────────────────────────────

// walkFields calls fn for every field in b.  fn consumes the field value
// starting at the returned slice and reports how many bytes it used.
func walkFields(b []byte, fn func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("read tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		m, err := fn(num, typ, b)
		if err != nil {
			return fmt.Errorf("field %d: %w", num, err)
		}
		b = b[m:]
	}
	return nil
}

func consumeString(b []byte, dst *string) (int, error) {
	s, n := protowire.ConsumeString(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*dst = s
	return n, nil
}

func skip(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return n, nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}
