package chat

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	tenantRoomPrefix   = "tenant_"
	explicitRoomPrefix = "room_"
)

// TenantRoomID returns the id of the implicit room shared by all principals of a tenant.
func TenantRoomID(tenantID string) string {
	return tenantRoomPrefix + tenantID
}

// IsTenantRoom reports whether roomID names an implicit tenant room.
func IsTenantRoom(roomID string) bool {
	return strings.HasPrefix(roomID, tenantRoomPrefix) && len(roomID) > len(tenantRoomPrefix)
}

// TenantOfRoom extracts the tenant id encoded in an implicit tenant room id.
func TenantOfRoom(roomID string) (string, bool) {
	if !IsTenantRoom(roomID) {
		return "", false
	}
	return strings.TrimPrefix(roomID, tenantRoomPrefix), true
}

// ExplicitRoomID builds an explicit room id from a creation time and a random suffix.
func ExplicitRoomID(at time.Time, suffix string) string {
	return fmt.Sprintf("%s%d_%s", explicitRoomPrefix, at.UnixMilli(), suffix)
}

// IsExplicitRoom reports whether roomID has the room_<millis>_<random> shape.
func IsExplicitRoom(roomID string) bool {
	rest, ok := strings.CutPrefix(roomID, explicitRoomPrefix)
	if !ok {
		return false
	}
	ts, suffix, ok := strings.Cut(rest, "_")
	if !ok || suffix == "" {
		return false
	}
	_, err := strconv.ParseInt(ts, 10, 64)
	return err == nil
}
