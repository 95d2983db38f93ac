package domain

import (
	"smallbiznis-tenancy/pkg/dns"

	"go.uber.org/fx"
)

var Module = fx.Module("domain.module",
	dns.Module,
	fx.Provide(
		asVerifier,
		NewService,
	),
)

func asVerifier(v *dns.Verifier) Verifier {
	return v
}
