package dlp

// Rule is a vendor API key shape. Only self-identifying prefixes are used by
// default so that ordinary spreadsheet text is not flagged.
type Rule struct {
	// ID names the rule in findings and audit logs.
	ID string `koanf:"id" toml:"id"`

	// Description explains what the rule detects.
	Description string `koanf:"description" toml:"description"`

	// Pattern is the regular expression matched against text.
	Pattern string `koanf:"pattern" toml:"pattern"`
}

// DefaultRules returns the built-in API key rules.
func DefaultRules() []Rule {
	return []Rule{
		{ID: "aws-access-key-id", Description: "AWS Access Key ID", Pattern: `\b(?:A3T[A-Z0-9]|AKIA|AGPA|AIDA|AROA|AIPA|ANPA|ANVA|ASIA)[A-Z0-9]{16}\b`},
		{ID: "github-token", Description: "GitHub Personal Access Token", Pattern: `\bgh[pousr]_[A-Za-z0-9]{36,}`},
		{ID: "github-fine-grained", Description: "GitHub Fine-grained Personal Access Token", Pattern: `\bgithub_pat_[A-Za-z0-9_]{22,}`},
		{ID: "gitlab-token", Description: "GitLab Personal Access Token", Pattern: `\bglpat-[A-Za-z0-9\-_]{20,}`},
		{ID: "slack-token", Description: "Slack Token", Pattern: `\bxox[baprs]-[A-Za-z0-9\-]{10,}`},
		{ID: "stripe-key", Description: "Stripe API Key", Pattern: `\b(?:sk|pk|rk)_(?:live|test)_[A-Za-z0-9]{24,}`},
		{ID: "google-api-key", Description: "Google API Key", Pattern: `\bAIza[A-Za-z0-9_\-]{35}`},
		{ID: "anthropic-api-key", Description: "Anthropic API Key", Pattern: `\bsk-ant-[A-Za-z0-9_\-]{32,}`},
		{ID: "openai-api-key", Description: "OpenAI API Key", Pattern: `\bsk-(?:proj-)?[A-Za-z0-9_\-]{40,}`},
		{ID: "sendgrid-api-key", Description: "SendGrid API Key", Pattern: `\bSG\.[A-Za-z0-9_\-]{22,}\.[A-Za-z0-9_\-]{43,}`},
		{ID: "npm-token", Description: "npm Access Token", Pattern: `\bnpm_[A-Za-z0-9]{36}`},
		{ID: "jwt", Description: "JSON Web Token", Pattern: `\beyJ[A-Za-z0-9_-]{8,}\.eyJ[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}`},
	}
}
