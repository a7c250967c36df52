// Package opcua implements the protocol.Client contract for OPC UA
// servers (PLCs, packaged climate controllers) behind a pluggable
// Session.
//
// The Session interface carries the node read/write and browse calls
// the gateway needs; SimSession is the in-process implementation used
// by tests and by deployments without OPC UA equipment. Node addresses
// use the standard string form, e.g. "ns=2;s=Line1.Temperature".
package opcua
