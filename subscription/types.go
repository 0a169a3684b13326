package subscription

import "time"

// FolderPermission classifies who may subscribe to a shared folder.
type FolderPermission string

const (
	PermissionPublic    FolderPermission = "Public"
	PermissionPrivate   FolderPermission = "Private"
	PermissionWhitelist FolderPermission = "Whitelist"
)

// Payment describes an optional subscription payment offer, opaque beyond
// the fields the publisher's SubscriptionRequirement checks against.
type Payment struct {
	Kind   string `json:"kind"`
	Amount string `json:"amount"`
}

// Requirement is a shared folder's subscription_requirement: who may
// subscribe and under what payment terms.
type Requirement struct {
	Permission FolderPermission `json:"permission"`
	Whitelist  []string         `json:"whitelist,omitempty"`
	MinPayment *Payment         `json:"min_payment,omitempty"`
}

// SharedFolderInfo is one folder a publisher has advertised.
type SharedFolderInfo struct {
	Path        string           `json:"path"`
	Permission  FolderPermission `json:"permission"`
	Profile     string           `json:"profile"`
	Tree        FSNode           `json:"tree"`
	Requirement *Requirement     `json:"subscription_requirement,omitempty"`
}

// State is a subscriber-side subscription's lifecycle state.
type State string

const (
	StatePending           State = "Pending"
	StateRequestSent       State = "RequestSent"
	StateResponseAvailable State = "ResponseAvailable"
	StateSynced            State = "Synced"
	StateFailed            State = "Failed"
)

// ID identifies a subscription by its three defining coordinates.
type ID struct {
	StreamerNode   string
	SharedPath     string
	SubscriberNode string
}

// Subscription is the subscriber-side state machine instance for one
// (streamer, path) pair.
type Subscription struct {
	ID                   ID
	State                State
	LastRequestSent      time.Time
	LastResponseReceived time.Time
	CachedTree           *FSNode

	consecutiveFailures int
	backoff             time.Duration
}

// activeSubscriber is the publisher-side record of one subscriber's
// standing subscription to a shared path.
type activeSubscriber struct {
	subscriberNode string
	payment        *Payment
}
