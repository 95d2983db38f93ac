package rediskey

import "fmt"

// Tenant keys (global convention across services)
const (
	TenantDomainPrefix = "tenant:domain"

	TenantCodeSequenceKey = "seq:tenant"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildTenantDomainKey returns "tenant:domain:{hostname}"
func BuildTenantDomainKey(hostname string) string {
	return NamespaceKey(TenantDomainPrefix, hostname)
}
