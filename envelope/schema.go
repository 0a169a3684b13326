package envelope

import "fmt"

// SchemaTag identifies the payload type of an unencrypted message. The
// dispatcher rejects any tag it does not recognize rather than
// silently downcasting it, so the set below is closed.
type SchemaTag string

const (
	SchemaTagNone SchemaTag = ""

	SchemaTagTextMessage SchemaTag = "TextMessage"
	SchemaTagJobMessage  SchemaTag = "JobMessage"
	SchemaTagWSMessage   SchemaTag = "WSMessage"

	SchemaTagAvailableSharedItems                   SchemaTag = "AvailableSharedItems"
	SchemaTagAvailableSharedItemsResponse           SchemaTag = "AvailableSharedItemsResponse"
	SchemaTagSubscribeToSharedFolder                SchemaTag = "SubscribeToSharedFolder"
	SchemaTagSubscribeToSharedFolderResponse        SchemaTag = "SubscribeToSharedFolderResponse"
	SchemaTagSubscriptionRequiresTreeUpdate         SchemaTag = "SubscriptionRequiresTreeUpdate"
	SchemaTagSubscriptionRequiresTreeUpdateResponse SchemaTag = "SubscriptionRequiresTreeUpdateResponse"
	SchemaTagUnsubscribeToSharedFolder              SchemaTag = "UnsubscribeToSharedFolder"
)

// knownSchemaTags is the closed set accepted at the dispatcher boundary.
var knownSchemaTags = map[SchemaTag]bool{
	SchemaTagTextMessage: true,
	SchemaTagJobMessage:  true,
	SchemaTagWSMessage:   true,

	SchemaTagAvailableSharedItems:                   true,
	SchemaTagAvailableSharedItemsResponse:           true,
	SchemaTagSubscribeToSharedFolder:                true,
	SchemaTagSubscribeToSharedFolderResponse:        true,
	SchemaTagSubscriptionRequiresTreeUpdate:         true,
	SchemaTagSubscriptionRequiresTreeUpdateResponse: true,
	SchemaTagUnsubscribeToSharedFolder:              true,
}

// errUnknownSchemaTagFmt formats the error ValidateSchemaTag returns when a
// tag outside the closed set above is encountered at a boundary that must
// reject it rather than guess.
var errUnknownSchemaTagFmt = "envelope: unknown schema tag %q"

// ValidateSchemaTag rejects any tag the dispatcher does not recognize.
func ValidateSchemaTag(tag SchemaTag) error {
	if !knownSchemaTags[tag] {
		return fmt.Errorf(errUnknownSchemaTagFmt, string(tag))
	}
	return nil
}
