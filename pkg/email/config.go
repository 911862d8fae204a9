package email

// Config holds email transport configuration. Postmark tokens are optional so
// development setups can run with the file-based DevSender.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"SENDER_EMAIL" envDefault:"notifications@localhost"`
	ReplyToEmail         string `env:"REPLY_TO_EMAIL"`
	DevOutputDir         string `env:"EMAIL_DEV_DIR" envDefault:".emails"`
}

// UsePostmark reports whether Postmark credentials are configured.
func (c Config) UsePostmark() bool {
	return c.PostmarkServerToken != ""
}
