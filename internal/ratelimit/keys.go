package ratelimit

const (
	keyPrefix = "rl:"

	// GlobalKey is the store key of the counter shared by all recipients.
	GlobalKey = keyPrefix + "global"
)

// RecipientKey returns the store key of the counter for recipientID.
func RecipientKey(recipientID string) string {
	return keyPrefix + recipientID
}
