// Package subscription implements the subscription manager: the
// publisher and subscriber state machines by which one node
// advertises shared folders, a second node subscribes, and the publisher
// pushes a Merkle-tracked folder tree plus file transfer coordinates.
package subscription
