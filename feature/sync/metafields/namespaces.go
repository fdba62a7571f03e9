package metafields

import "strings"

// Namespace conventions: the platform reserves "shopify"-prefixed
// namespaces, and namespaces carrying the "app--" prefix belong to other
// installed apps. Neither may be written by this app, so both are skipped
// and counted separately from failures.
func IsReservedNamespace(namespace string) bool {
	ns := strings.ToLower(namespace)
	return ns == "shopify" || strings.HasPrefix(ns, "shopify--") || strings.HasPrefix(ns, "app--")
}
