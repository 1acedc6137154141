package util

import "strings"

const recordPrefix = "rec:"

// NamespacePrefix returns the storage-key prefix owned by namespace ns.
func NamespacePrefix(ns string) string {
	return recordPrefix + ns + ":"
}

// RecordKey returns the storage key for record key under namespace ns.
func RecordKey(ns, key string) string {
	return NamespacePrefix(ns) + key
}

// ParseRecordKey reverses RecordKey. ok is false for storage keys outside ns.
func ParseRecordKey(ns, storageKey string) (key string, ok bool) {
	key, ok = strings.CutPrefix(storageKey, NamespacePrefix(ns))
	return key, ok && key != ""
}
