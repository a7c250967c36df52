// Package hlp implements the protocol client for HLP lighting fixtures:
// a strict request/response exchange of CRC-framed binary messages over
// a single TCP stream. Status requests serve reads; intensity commands
// serve writes, including the ramped reductions the safety monitor
// issues.
package hlp
