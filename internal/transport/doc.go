// Package transport serves the agent over UDP using the SNMPv1/v2c wire
// format.
//
// Each datagram is decoded with gosnmp, its community string mapped to a
// principal, and the PDU translated into an agent.Request. The response is
// encoded back as a GetResponse PDU. Packets that cannot be decoded, that
// use an unknown community, or that are not requests are dropped without
// a reply.
//
// Exceptions are reported per binding for v2c (noSuchObject, endOfMibView)
// and collapsed into a noSuchName error status for v1.
package transport
