package main

import (
	"strconv"

	"offchaind/oc"
)

// Key layout, all textual and ':' separated:
//
//	WRITEP:{method}:{seq}       queue slot, seq in decimal
//	WRITEP:{method}:top         top marker
//	WRITEP:{method}:bottom      bottom marker
//	WRITEP:{method}:retry       retry state of the stalled slot
//	WRITEP:{method}:floor       highest compacted slot
//	LEDGER:callcounter:{method} call counter
//	LEDGER:articleindex:{id}    secondary index entry
//	OFFCHAIN:article:{id}       processed article
//	OFFCHAIN:articleindex:{id}  processed content hash
//
// Method identifiers never contain ':' and tags are never numeric, so slot
// and marker keys cannot collide.

const sep = ':'

func methodKey(method string, n int) []byte {
	k := make([]byte, 0, len(oc.SlotPrefix)+len(method)+n+2)
	k = append(k, oc.SlotPrefix...)
	k = append(k, sep)
	k = append(k, method...)
	k = append(k, sep)
	return k
}

func slotKey(method string, seq uint64) []byte {
	return strconv.AppendUint(methodKey(method, 20), seq, 10)
}

func topKey(method string) []byte {
	return append(methodKey(method, 3), "top"...)
}

func bottomKey(method string) []byte {
	return append(methodKey(method, 6), "bottom"...)
}

func retryKey(method string) []byte {
	return append(methodKey(method, 5), "retry"...)
}

func floorKey(method string) []byte {
	return append(methodKey(method, 5), "floor"...)
}

func tableKey(prefix, table string, id []byte) []byte {
	k := make([]byte, 0, len(prefix)+len(table)+len(id)+2)
	k = append(k, prefix...)
	k = append(k, sep)
	k = append(k, table...)
	k = append(k, sep)
	k = append(k, id...)
	return k
}

func counterKey(method string) []byte {
	return tableKey(oc.LedgerPrefix, "callcounter", []byte(method))
}

func indexKey(id []byte) []byte {
	return tableKey(oc.LedgerPrefix, "articleindex", id)
}

func articleKey(id []byte) []byte {
	return tableKey(oc.OffchainPrefix, "article", id)
}

func articleIndexKey(id []byte) []byte {
	return tableKey(oc.OffchainPrefix, "articleindex", id)
}

// validMethodID reports whether s can be used as a method identifier.
func validMethodID(s string) bool {
	if len(s) == 0 || len(s) > 64 {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' {
			return false
		}
	}
	return true
}
