package taskname

const (
	// Published by the order service when a checkout settles or is refunded.
	TransactionCompleted = "transaction:completed"

	// Daily loyalty jobs.
	LoyaltyBirthdayRun = "loyalty:birthday:run"
	RewardExpiryRun    = "reward:expiry:run"
)

// Queues, highest priority first.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)
