package record

import (
	"sort"
	"strings"
)

// Dump renders store dumps as stable text: stores by name, records by key,
// fields by field key.
//
//	MemoryStore {
//	  2001 {
//	    name : "R2-D2"
//	  }
//	}
func Dump(stores map[string]map[string]*Record) string {
	names := make([]string, 0, len(stores))
	for n := range stores {
		names = append(names, n)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, n := range names {
		sb.WriteString(n)
		sb.WriteString(" {\n")
		writeRecords(&sb, stores[n], "  ")
		sb.WriteString("}\n")
	}
	return sb.String()
}

// DumpRecords renders a single record table without a store header.
func DumpRecords(records map[string]*Record) string {
	var sb strings.Builder
	writeRecords(&sb, records, "")
	return sb.String()
}

func writeRecords(sb *strings.Builder, records map[string]*Record, indent string) {
	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		r := records[k]
		sb.WriteString(indent)
		sb.WriteString(k)
		sb.WriteString(" {\n")
		for _, f := range r.SortedFields() {
			sb.WriteString(indent)
			sb.WriteString("  ")
			sb.WriteString(f)
			sb.WriteString(" : ")
			r.fields[f].write(sb)
			sb.WriteByte('\n')
		}
		sb.WriteString(indent)
		sb.WriteString("}\n")
	}
}
