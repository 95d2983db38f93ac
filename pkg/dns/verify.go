package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"smallbiznis-tenancy/pkg/config"

	"github.com/miekg/dns"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("dns",
	fx.Provide(NewVerifier),
)

var ErrRecordNotFound = errors.New("no matching TXT record found")

// Verifier checks domain ownership through a TXT record carrying a
// verification code. The configured resolvers are queried in order, then the
// system resolver.
type Verifier struct {
	resolvers []string
	timeout   time.Duration
	lookupTXT func(ctx context.Context, host string) ([]string, error)
}

func NewVerifier(cfg *config.Config) *Verifier {
	timeout := cfg.DNS.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Verifier{
		resolvers: cfg.DNS.Resolvers,
		timeout:   timeout,
		lookupTXT: net.DefaultResolver.LookupTXT,
	}
}

// Verify returns nil when hostname has a TXT record equal to expectedCode.
func (v *Verifier) Verify(ctx context.Context, hostname, expectedCode string) error {
	if strings.TrimSpace(hostname) == "" {
		return fmt.Errorf("hostname cannot be empty")
	}

	if strings.TrimSpace(expectedCode) == "" {
		return fmt.Errorf("expectedCode cannot be empty")
	}

	host := dns.Fqdn(hostname)
	zapLog := zap.L().With(zap.String("hostname", hostname))
	zapLog.Debug("Verifying DNS TXT record", zap.Strings("resolvers", v.resolvers))

	for _, resolver := range v.resolvers {
		records, err := v.queryTXT(ctx, host, resolver)
		if err != nil {
			zapLog.Debug("DNS query failed", zap.String("resolver", resolver), zap.Error(err))
			continue
		}
		if containsCode(records, expectedCode) {
			zapLog.Info("DNS TXT verification success", zap.String("resolver", resolver))
			return nil
		}
	}

	if v.lookupTXT == nil {
		return fmt.Errorf("%w for %s", ErrRecordNotFound, hostname)
	}

	zapLog.Debug("Falling back to system resolver")
	records, err := v.lookupTXT(ctx, host)
	if err != nil {
		return fmt.Errorf("system resolver TXT lookup failed: %w", err)
	}
	if containsCode(records, expectedCode) {
		zapLog.Info("DNS TXT verification success (system resolver)")
		return nil
	}

	return fmt.Errorf("%w for %s", ErrRecordNotFound, hostname)
}

func (v *Verifier) queryTXT(ctx context.Context, host, resolver string) ([]string, error) {
	client := &dns.Client{
		Timeout: v.timeout,
	}

	msg := new(dns.Msg)
	msg.SetQuestion(host, dns.TypeTXT)

	resp, _, err := client.ExchangeContext(ctx, msg, resolver)
	if err != nil {
		return nil, err
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("resolver %s answered %s", resolver, dns.RcodeToString[resp.Rcode])
	}

	var records []string
	for _, ans := range resp.Answer {
		if txt, ok := ans.(*dns.TXT); ok {
			// long values are split into 255 byte chunks
			records = append(records, strings.Join(txt.Txt, ""))
		}
	}
	return records, nil
}

func containsCode(records []string, code string) bool {
	for _, r := range records {
		if strings.TrimSpace(r) == code {
			return true
		}
	}
	return false
}
