// Package config defines the bridge's process-bootstrap configuration,
// loaded from the environment.
package config

type Config struct {
	OperatorUserID string `envconfig:"OPERATOR_USER_ID" required:"true" description:"The fabric user id of the operator this bridge instance serves."`
	BotUserID      string `envconfig:"BOT_USER_ID" required:"true" description:"The fabric user id the bridge itself posts as, i.e. the appservice bot account. Distinct from every puppet id."`
	ServerName     string `envconfig:"SERVER_NAME" required:"true" description:"The bridge's own fabric server_name, used to mint and recognize puppet user ids."`
	PuppetPrefix   string `envconfig:"PUPPET_PREFIX" required:"true" val:"irc_" description:"Localpart prefix applied to every puppet user id this bridge mints."`
	MemberSync     bool   `envconfig:"MEMBER_SYNC" required:"true" val:"true" description:"Whether newly plumbed rooms sync full legacy channel membership by default."`
	LogLevel       string `envconfig:"LOG_LEVEL" required:"true" val:"info" description:"Set logging granularity. Possible values: 'trace', 'debug', 'info', 'warn', 'error'."`
	AccountDataKey string `envconfig:"ACCOUNT_DATA_KEY" required:"true" val:"irc" description:"Not read by the bridge: the per-operator persisted blob is always stored under the account-data key 'irc' (persist.AccountDataKey)."`
	PillsLength    int    `envconfig:"PILLS_LENGTH" required:"true" val:"2" description:"Minimum nickname length eligible for mention pillification; 0 disables pills entirely."`
}
