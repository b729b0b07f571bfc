// Package channel owns the exchange engine that sits between application
// goroutines and a duplex byte transport.
//
// Ownership boundary:
// - FIFO queue of pending exchanges, one in flight at a time
// - Exchange/ExchangeReply/Send/Revoke entry points
// - SendData/ReceiveData/StateChange pump hooks called by the transport
// - expiry sweep and waiter re-evaluation against teardown
//
// The wire is treated as half-duplex request/reply: the queue front fully
// resolves (complete, revoked or expired) before the next entry transmits.
package channel
