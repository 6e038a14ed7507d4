package dlp

import (
	"fmt"
	"regexp"
	"strings"

	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"
	"go.uber.org/zap"
)

// secretScanner runs the gitleaks default ruleset. A fresh detector is built
// per scan from the parsed config because detectors accumulate findings.
type secretScanner struct {
	cfg    gitleaksConfig.Config
	logger *zap.Logger
}

func newSecretScanner(allow []*regexp.Regexp, logger *zap.Logger) (*secretScanner, error) {
	base, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("load gitleaks config: %w", err)
	}
	cfg := base.Config
	if len(allow) > 0 {
		list := &gitleaksConfig.Allowlist{Description: "sheetctx allow list"}
		for _, re := range allow {
			list.Regexes = append(list.Regexes, (*gitleaksRegexp.Regexp)(re))
		}
		cfg.Allowlists = append(cfg.Allowlists, list)
	}
	return &secretScanner{cfg: cfg, logger: logger}, nil
}

// find locates each reported secret in text. Gitleaks columns are line
// relative, so spans are found by searching for the secret itself.
func (s *secretScanner) find(text string) (out []span) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("extended secret scan failed", zap.Any("panic", r))
			out = nil
		}
	}()

	for _, f := range detect.NewDetector(s.cfg).DetectString(text) {
		secret := f.Secret
		if secret == "" {
			secret = f.Match
		}
		if secret == "" {
			continue
		}
		kind := KindAPIKey
		if strings.Contains(f.RuleID, "private-key") {
			kind = KindPrivateKey
		}
		for from := 0; ; {
			i := strings.Index(text[from:], secret)
			if i < 0 {
				break
			}
			start := from + i
			out = append(out, span{start: start, end: start + len(secret), kind: kind, rule: f.RuleID})
			from = start + len(secret)
		}
	}
	return out
}
