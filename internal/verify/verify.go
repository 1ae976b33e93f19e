// Package verify checks tenant domain ownership before activation: a DNS
// TXT record proves control, a WHOIS lookup adds advisory registration info.
package verify

import (
	"fmt"
	"strings"
	"time"

	"github.com/likexian/whois"
	"github.com/miekg/dns"
	"go.uber.org/zap"

	"github.com/Kareem-Elnokali/system-creator/internal/config"
)

type Result struct {
	Verified   bool     `json:"verified"`
	TXTRecords []string `json:"txt_records,omitempty"`
	Registrar  string   `json:"registrar,omitempty"`
	Error      string   `json:"error,omitempty"`
}

type Verifier struct {
	resolver  string
	txtPrefix string
	logger    *zap.Logger
}

func NewVerifier(cfg config.VerifyConfig, logger *zap.Logger) *Verifier {
	return &Verifier{
		resolver:  cfg.Resolver,
		txtPrefix: cfg.TXTPrefix,
		logger:    logger,
	}
}

// VerifyDomain looks for a TXT record of the form <prefix><token> on the
// domain. WHOIS failure is advisory only and never fails verification.
func (v *Verifier) VerifyDomain(domain, token string) *Result {
	result := &Result{}

	records, err := v.lookupTXT(domain)
	if err != nil {
		result.Error = err.Error()
		v.logger.Warn("Domain TXT lookup failed",
			zap.String("domain", domain),
			zap.Error(err),
		)
		return result
	}
	result.TXTRecords = records

	expected := v.txtPrefix + token
	for _, record := range records {
		if strings.TrimSpace(record) == expected {
			result.Verified = true
			break
		}
	}

	if registrar, err := v.lookupRegistrar(domain); err == nil {
		result.Registrar = registrar
	} else {
		v.logger.Debug("WHOIS lookup failed",
			zap.String("domain", domain),
			zap.Error(err),
		)
	}

	v.logger.Info("Domain verification checked",
		zap.String("domain", domain),
		zap.Bool("verified", result.Verified),
	)
	return result
}

func (v *Verifier) lookupTXT(domain string) ([]string, error) {
	c := new(dns.Client)
	c.Timeout = 10 * time.Second

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(domain), dns.TypeTXT)

	r, _, err := c.Exchange(m, v.resolver)
	if err != nil {
		return nil, fmt.Errorf("DNS query failed: %w", err)
	}
	if r.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("DNS query failed with code: %s", dns.RcodeToString[r.Rcode])
	}

	var records []string
	for _, ans := range r.Answer {
		if txt, ok := ans.(*dns.TXT); ok {
			records = append(records, strings.Join(txt.Txt, " "))
		}
	}
	return records, nil
}

func (v *Verifier) lookupRegistrar(domain string) (string, error) {
	raw, err := whois.Whois(domain)
	if err != nil {
		return "", fmt.Errorf("whois lookup failed: %w", err)
	}

	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToLower(trimmed), "registrar:") {
			return strings.TrimSpace(trimmed[len("registrar:"):]), nil
		}
	}
	return "", fmt.Errorf("registrar not found in whois record")
}
