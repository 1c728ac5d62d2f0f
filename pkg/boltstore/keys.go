package boltstore

import (
	"encoding/binary"

	"github.com/traumwelt-mud/traumwelt/pkg/gamedb"
)

// Bucket name constants for bbolt storage.
var (
	bucketMeta         = []byte("meta")
	bucketObjects      = []byte("objects")
	bucketAccounts     = []byte("accounts")
	bucketAccountNames = []byte("accountnames")
)

// Meta key constants.
var (
	keyNextRef     = []byte("nextref")
	keyNextAccount = []byte("nextaccount")
)

// refToKey converts an ObjRef to an 8-byte big-endian key.
// Offset by a large constant so negative sentinels sort correctly.
func refToKey(ref gamedb.ObjRef) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(int64(ref)+1<<32))
	return buf
}

// keyToRef converts an 8-byte big-endian key back to an ObjRef.
func keyToRef(b []byte) gamedb.ObjRef {
	v := binary.BigEndian.Uint64(b)
	return gamedb.ObjRef(int64(v) - 1<<32)
}

// idToKey converts an AccountID to an 8-byte big-endian key.
func idToKey(id gamedb.AccountID) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}

// keyToID converts an 8-byte big-endian key back to an AccountID.
func keyToID(b []byte) gamedb.AccountID {
	return gamedb.AccountID(binary.BigEndian.Uint64(b))
}

// intToKey converts an int to an 8-byte big-endian key.
func intToKey(n int) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(n))
	return buf
}

// keyToInt converts an 8-byte big-endian key back to an int.
func keyToInt(b []byte) int {
	return int(binary.BigEndian.Uint64(b))
}
