package inbox

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shinkai-net/shinkai-node/apierr"
)

// RegularName builds the canonical inbox name for a sender/recipient pair:
// "inbox::<sender>::<recipient>::<is_e2e>".
func RegularName(sender, recipient string, isE2E bool) string {
	return fmt.Sprintf("inbox::%s::%s::%s", sender, recipient, strconv.FormatBool(isE2E))
}

// JobName builds the canonical inbox name for a job:
// "job_inbox::<job_id>::<is_e2e>".
func JobName(jobID string, isE2E bool) string {
	return fmt.Sprintf("job_inbox::%s::%s", jobID, strconv.FormatBool(isE2E))
}

// IsJobInbox reports whether name identifies a job inbox rather than a
// regular sender/recipient inbox.
func IsJobInbox(name string) bool {
	return strings.HasPrefix(name, "job_inbox::")
}

// JobIDFromInboxName extracts the job_id component of a job inbox name.
func JobIDFromInboxName(name string) (string, error) {
	parts := strings.Split(name, "::")
	if len(parts) != 3 || parts[0] != "job_inbox" {
		return "", apierr.New(apierr.KindInvalidName, fmt.Sprintf("inbox: not a job inbox name: %q", name))
	}
	return parts[1], nil
}
