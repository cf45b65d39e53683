package scan

import "crypto/md5"

// offlineUUID reproduces Mojang's offline-player UUID derivation:
// MD5("OfflinePlayer:"+name), with the version nibble forced to 3 and the
// variant bits forced to the RFC 4122 layout — no namespace UUID is
// prepended, unlike a textbook RFC 4122 v3 name-based UUID. A cracked
// account that doesn't already carry a UUID needs this to build a valid
// login-start packet.
func offlineUUID(username string) [16]byte {
	sum := md5.Sum([]byte("OfflinePlayer:" + username))
	sum[6] = (sum[6] & 0x0F) | 0x30 // version 3
	sum[8] = (sum[8] & 0x3F) | 0x80 // variant RFC 4122
	return sum
}
