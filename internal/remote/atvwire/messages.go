package atvwire

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// Message field numbers of the vendor protocol. Messages are built and parsed
// with protowire directly; the protocol surface used by the driver is small
// enough that generated code is not worth the build complexity.

// Pairing channel (port 6467).
const (
	pairingFieldProtocolVersion = 1
	pairingFieldStatus          = 2

	pairingFieldRequest          = 10
	pairingFieldRequestAck       = 11
	pairingFieldOption           = 20
	pairingFieldConfiguration    = 30
	pairingFieldConfigurationAck = 31
	pairingFieldSecret           = 40
	pairingFieldSecretAck        = 41
)

// Remote channel (port 6466).
const (
	remoteFieldConfigure      = 1
	remoteFieldSetActive      = 2
	remoteFieldError          = 3
	remoteFieldPingRequest    = 8
	remoteFieldPingResponse   = 9
	remoteFieldKeyInject      = 10
	remoteFieldImeKeyInject   = 20
	remoteFieldStart          = 32
	remoteFieldSetVolumeLevel = 33
	remoteFieldAppLinkLaunch  = 90
)

const (
	pairingProtocolVersion = 2

	statusOK           = 200
	statusBadSecret    = 403
	statusBadContent   = 400
	statusBadState     = 401
	statusUnauthorized = 402
)

func protoNum(n int) protowire.Number {
	return protowire.Number(n)
}

type field struct {
	num  protowire.Number
	typ  protowire.Type
	data []byte
	uval uint64
}

// appendMessageField appends a length-delimited submessage field.
func appendMessageField(buf []byte, num protowire.Number, sub []byte) []byte {
	buf = protowire.AppendTag(buf, num, protowire.BytesType)
	return protowire.AppendBytes(buf, sub)
}

func appendStringField(buf []byte, num protowire.Number, s string) []byte {
	buf = protowire.AppendTag(buf, num, protowire.BytesType)
	return protowire.AppendString(buf, s)
}

func appendBytesField(buf []byte, num protowire.Number, b []byte) []byte {
	buf = protowire.AppendTag(buf, num, protowire.BytesType)
	return protowire.AppendBytes(buf, b)
}

func appendVarintField(buf []byte, num protowire.Number, v uint64) []byte {
	buf = protowire.AppendTag(buf, num, protowire.VarintType)
	return protowire.AppendVarint(buf, v)
}

func appendBoolField(buf []byte, num protowire.Number, v bool) []byte {
	u := uint64(0)
	if v {
		u = 1
	}
	return appendVarintField(buf, num, u)
}

// parseFields decodes the top-level fields of a message. Unknown wire types
// are skipped; the caller looks up fields by number.
func parseFields(payload []byte) (map[protowire.Number]field, error) {
	fields := make(map[protowire.Number]field)
	for len(payload) > 0 {
		num, typ, n := protowire.ConsumeTag(payload)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		payload = payload[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(payload)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			fields[num] = field{num: num, typ: typ, uval: v}
			payload = payload[n:]
		case protowire.BytesType:
			b, n := protowire.ConsumeBytes(payload)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			fields[num] = field{num: num, typ: typ, data: b}
			payload = payload[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, payload)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			payload = payload[n:]
		}
	}
	return fields, nil
}

func parseString(fields map[protowire.Number]field, num protowire.Number) string {
	if f, ok := fields[num]; ok {
		return string(f.data)
	}
	return ""
}

func parseUint(fields map[protowire.Number]field, num protowire.Number) (uint64, bool) {
	f, ok := fields[num]
	return f.uval, ok
}

// pairingEnvelope wraps an inner pairing message with version and status.
func pairingEnvelope(inner protowire.Number, body []byte) []byte {
	buf := appendVarintField(nil, pairingFieldProtocolVersion, pairingProtocolVersion)
	buf = appendVarintField(buf, pairingFieldStatus, statusOK)
	return appendMessageField(buf, inner, body)
}

// pairingRequest carries the service and client names.
func pairingRequest(serviceName, clientName string) []byte {
	body := appendStringField(nil, 1, serviceName)
	body = appendStringField(body, 2, clientName)
	return pairingEnvelope(pairingFieldRequest, body)
}

// pairingOption advertises a 6-digit hexadecimal pairing code, device as
// the display role.
func pairingOption() []byte {
	encoding := appendVarintField(nil, 1, 3) // ENCODING_TYPE_HEXADECIMAL
	encoding = appendVarintField(encoding, 2, 6)
	body := appendMessageField(nil, 1, encoding)
	body = appendVarintField(body, 3, 1) // ROLE_TYPE_INPUT
	return pairingEnvelope(pairingFieldOption, body)
}

func pairingConfiguration() []byte {
	encoding := appendVarintField(nil, 1, 3)
	encoding = appendVarintField(encoding, 2, 6)
	body := appendMessageField(nil, 1, encoding)
	body = appendVarintField(body, 2, 1)
	return pairingEnvelope(pairingFieldConfiguration, body)
}

func pairingSecret(secret []byte) []byte {
	body := appendBytesField(nil, 1, secret)
	return pairingEnvelope(pairingFieldSecret, body)
}

// remoteConfigure announces the client to the device.
func remoteConfigure(clientName string) []byte {
	info := appendStringField(nil, 1, "atvbridge") // model
	info = appendStringField(info, 2, "hubgrid")   // vendor
	info = appendVarintField(info, 3, 1)           // unknown1
	info = appendStringField(info, 4, "1")         // unknown2
	info = appendStringField(info, 5, clientName)  // package name
	info = appendStringField(info, 6, "1.0")       // app version
	body := appendVarintField(nil, 1, 622)         // code1
	body = appendMessageField(body, 2, info)
	return appendMessageField(nil, remoteFieldConfigure, body)
}

func remoteSetActive() []byte {
	body := appendVarintField(nil, 1, 622)
	return appendMessageField(nil, remoteFieldSetActive, body)
}

func remotePingResponse(val uint64) []byte {
	body := appendVarintField(nil, 1, val)
	return appendMessageField(nil, remoteFieldPingResponse, body)
}

func remoteKeyInject(keycode int, direction int) []byte {
	body := appendVarintField(nil, 1, uint64(keycode))
	body = appendVarintField(body, 2, uint64(direction))
	return appendMessageField(nil, remoteFieldKeyInject, body)
}

func remoteAppLinkLaunch(appLink string) []byte {
	body := appendStringField(nil, 1, appLink)
	return appendMessageField(nil, remoteFieldAppLinkLaunch, body)
}
