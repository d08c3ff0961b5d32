package discord

import (
	"fmt"
	"math/bits"
	"sort"
	"strconv"
	"strings"
)

// Permissions is a platform permission bit set.
type Permissions uint64

var permissionBits = map[string]uint{
	"CREATE_INSTANT_INVITE":               0,
	"KICK_MEMBERS":                        1,
	"BAN_MEMBERS":                         2,
	"ADMINISTRATOR":                       3,
	"MANAGE_CHANNELS":                     4,
	"MANAGE_GUILD":                        5,
	"ADD_REACTIONS":                       6,
	"VIEW_AUDIT_LOG":                      7,
	"PRIORITY_SPEAKER":                    8,
	"STREAM":                              9,
	"VIEW_CHANNEL":                        10,
	"SEND_MESSAGES":                       11,
	"SEND_TTS_MESSAGES":                   12,
	"MANAGE_MESSAGES":                     13,
	"EMBED_LINKS":                         14,
	"ATTACH_FILES":                        15,
	"READ_MESSAGE_HISTORY":                16,
	"MENTION_EVERYONE":                    17,
	"USE_EXTERNAL_EMOJIS":                 18,
	"VIEW_GUILD_INSIGHTS":                 19,
	"CONNECT":                             20,
	"SPEAK":                               21,
	"MUTE_MEMBERS":                        22,
	"DEAFEN_MEMBERS":                      23,
	"MOVE_MEMBERS":                        24,
	"USE_VAD":                             25,
	"CHANGE_NICKNAME":                     26,
	"MANAGE_NICKNAMES":                    27,
	"MANAGE_ROLES":                        28,
	"MANAGE_WEBHOOKS":                     29,
	"MANAGE_GUILD_EXPRESSIONS":            30,
	"USE_APPLICATION_COMMANDS":            31,
	"REQUEST_TO_SPEAK":                    32,
	"MANAGE_EVENTS":                       33,
	"MANAGE_THREADS":                      34,
	"CREATE_PUBLIC_THREADS":               35,
	"CREATE_PRIVATE_THREADS":              36,
	"USE_EXTERNAL_STICKERS":               37,
	"SEND_MESSAGES_IN_THREADS":            38,
	"USE_EMBEDDED_ACTIVITIES":             39,
	"MODERATE_MEMBERS":                    40,
	"VIEW_CREATOR_MONETIZATION_ANALYTICS": 41,
	"USE_SOUNDBOARD":                      42,
	"CREATE_GUILD_EXPRESSIONS":            43,
	"CREATE_EVENTS":                       44,
	"USE_EXTERNAL_SOUNDS":                 45,
	"SEND_VOICE_MESSAGES":                 46,
	"SEND_POLLS":                          49,
	"USE_EXTERNAL_APPS":                   50,
}

// Legacy and shorthand names accepted in configuration.
var permissionAliases = map[string]string{
	"MANAGE_EMOJIS_AND_STICKERS": "MANAGE_GUILD_EXPRESSIONS",
	"USE_VOICE_ACTIVITY":         "USE_VAD",
	"TIMEOUT_MEMBERS":            "MODERATE_MEMBERS",
	"READ_MESSAGES":              "VIEW_CHANNEL",
}

var permissionNames = func() map[uint]string {
	names := make(map[uint]string, len(permissionBits))
	for name, bit := range permissionBits {
		names[bit] = name
	}
	return names
}()

func lookupPermission(name string) (Permissions, error) {
	key := strings.ToUpper(strings.TrimSpace(name))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	if alias, ok := permissionAliases[key]; ok {
		key = alias
	}
	bit, ok := permissionBits[key]
	if !ok {
		return 0, fmt.Errorf("unknown permission %q", name)
	}
	return Permissions(1) << bit, nil
}

// ParsePermissions converts flag names to a bit set. A single entry that is
// a decimal number is taken as a raw bit set.
func ParsePermissions(names []string) (Permissions, error) {
	if len(names) == 1 {
		if raw, err := strconv.ParseUint(strings.TrimSpace(names[0]), 10, 64); err == nil {
			return Permissions(raw), nil
		}
	}

	var perms Permissions
	for _, name := range names {
		bit, err := lookupPermission(name)
		if err != nil {
			return 0, err
		}
		perms |= bit
	}
	return perms, nil
}

// ParseBitfield parses the API's decimal string form. Empty means no bits.
func ParseBitfield(s string) (Permissions, error) {
	if s == "" {
		return 0, nil
	}
	raw, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid permission bit set %q: %w", s, err)
	}
	return Permissions(raw), nil
}

// Bitfield returns the API's decimal string form.
func (p Permissions) Bitfield() string {
	return strconv.FormatUint(uint64(p), 10)
}

// Names returns the flag names in bit order. Unknown bits are rendered as
// BIT_<n>.
func (p Permissions) Names() []string {
	var names []string
	rest := uint64(p)
	for rest != 0 {
		bit := uint(bits.TrailingZeros64(rest))
		rest &^= 1 << bit
		if name, ok := permissionNames[bit]; ok {
			names = append(names, name)
		} else {
			names = append(names, fmt.Sprintf("BIT_%d", bit))
		}
	}
	return names
}

// FormatPermissions renders p as a sorted, comma-separated name list, or
// "none".
func FormatPermissions(p Permissions) string {
	names := p.Names()
	if len(names) == 0 {
		return "none"
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
