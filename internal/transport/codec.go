package transport

import (
	"fmt"

	"github.com/gosnmp/gosnmp"

	"github.com/roach88/minimib/internal/agent"
	"github.com/roach88/minimib/internal/mib"
)

var verbs = map[gosnmp.PDUType]agent.Verb{
	gosnmp.GetRequest:     agent.VerbGet,
	gosnmp.GetNextRequest: agent.VerbGetNext,
	gosnmp.SetRequest:     agent.VerbSet,
}

// fromPDU converts a decoded varbind value.
func fromPDU(pdu gosnmp.SnmpPDU) (mib.Value, error) {
	switch pdu.Type {
	case gosnmp.OctetString:
		switch v := pdu.Value.(type) {
		case []byte:
			return mib.String(v), nil
		case string:
			return mib.String(v), nil
		}
	case gosnmp.Integer:
		if v, ok := pdu.Value.(int); ok {
			return mib.Integer(v), nil
		}
	case gosnmp.TimeTicks:
		if v, ok := pdu.Value.(uint32); ok {
			return mib.TimeTicks(v), nil
		}
	}
	return nil, fmt.Errorf("unsupported value type %s", pdu.Type)
}

// toPDU converts a value for encoding.
func toPDU(oid mib.OID, v mib.Value) gosnmp.SnmpPDU {
	pdu := gosnmp.SnmpPDU{Name: oid.Dotted()}
	switch val := v.(type) {
	case mib.String:
		pdu.Type, pdu.Value = gosnmp.OctetString, string(val)
	case mib.Integer:
		pdu.Type, pdu.Value = gosnmp.Integer, int(val)
	case mib.TimeTicks:
		pdu.Type, pdu.Value = gosnmp.TimeTicks, uint32(val)
	default:
		pdu.Type = gosnmp.Null
	}
	return pdu
}

// exceptionPDU encodes a v2c per-binding exception.
func exceptionPDU(b agent.Binding) gosnmp.SnmpPDU {
	pdu := gosnmp.SnmpPDU{Name: b.OID.Dotted(), Type: gosnmp.NoSuchObject}
	if b.Exception == mib.StatusEndOfSpace {
		pdu.Type = gosnmp.EndOfMibView
	}
	return pdu
}

// errorStatus maps a request-level status onto the wire for version v.
func errorStatus(v gosnmp.SnmpVersion, s mib.Status) gosnmp.SNMPError {
	if v == gosnmp.Version1 {
		switch s {
		case mib.StatusSuccess:
			return gosnmp.NoError
		case mib.StatusNoSuchObject, mib.StatusNotWritable, mib.StatusNoAccess, mib.StatusEndOfSpace:
			return gosnmp.NoSuchName
		case mib.StatusWrongType, mib.StatusWrongValue:
			return gosnmp.BadValue
		}
		return gosnmp.GenErr
	}

	switch s {
	case mib.StatusSuccess:
		return gosnmp.NoError
	case mib.StatusNoSuchObject:
		return gosnmp.NoCreation
	case mib.StatusNotWritable:
		return gosnmp.NotWritable
	case mib.StatusWrongType:
		return gosnmp.WrongType
	case mib.StatusWrongValue:
		return gosnmp.WrongValue
	case mib.StatusNoAccess:
		return gosnmp.NoAccess
	}
	return gosnmp.GenErr
}

func errorIndex(i int) uint8 {
	if i < 0 || i > 255 {
		return 0
	}
	return uint8(i)
}

// encodeResponse fills out from an agent response. req holds the original
// varbinds, echoed back on error.
func encodeResponse(out *gosnmp.SnmpPacket, req []gosnmp.SnmpPDU, resp agent.Response) {
	if resp.Status != mib.StatusSuccess {
		out.Error = errorStatus(out.Version, resp.Status)
		out.ErrorIndex = errorIndex(resp.FailingIndex)
		out.Variables = req
		return
	}

	vars := make([]gosnmp.SnmpPDU, len(resp.Bindings))
	for i, b := range resp.Bindings {
		if b.Exception != mib.StatusSuccess {
			if out.Version == gosnmp.Version1 {
				out.Error = gosnmp.NoSuchName
				out.ErrorIndex = errorIndex(i + 1)
				out.Variables = req
				return
			}
			vars[i] = exceptionPDU(b)
			continue
		}
		vars[i] = toPDU(b.OID, b.Value)
	}
	out.Variables = vars
}
