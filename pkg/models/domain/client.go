package domain

// Account is a cloud account the auditor is allowed to read.
type Account struct {
	ID         string
	RoleARN    string
	ExternalID string
	Profile    string
	Regions    []string
}

type Client struct {
	ID           string
	Name         string
	Account      Account
	RequiredTags []string
}
