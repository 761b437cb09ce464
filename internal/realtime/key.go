package realtime

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// Provider tags. The tag is the part of a channel key before the first
// dash and picks the backend.
const (
	TagNATS  = "1"
	TagRedis = "2"
)

const (
	keyIDLength   = 8
	keyAlphabet   = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	channelPrefix = "rally-"
)

// ChannelKey is a parsed "{tag}-{id}" sharing key
type ChannelKey struct {
	Tag string
	ID  string
}

func (k ChannelKey) String() string {
	return k.Tag + "-" + k.ID
}

// Channel is the pub/sub channel name both backends use for this key
func (k ChannelKey) Channel() string {
	return channelPrefix + k.ID
}

// ParseChannelKey splits key at its first dash. Both sides must be
// non-empty; the id may itself contain dashes.
func ParseChannelKey(key string) (ChannelKey, error) {
	key = strings.TrimSpace(key)
	tag, id, ok := strings.Cut(key, "-")
	if !ok || tag == "" || id == "" {
		return ChannelKey{}, fmt.Errorf("%w: %q", ErrInvalidChannelKey, key)
	}
	if strings.ContainsAny(id, " \t*>.") {
		return ChannelKey{}, fmt.Errorf("%w: %q has characters not allowed in a channel name", ErrInvalidChannelKey, key)
	}
	return ChannelKey{Tag: tag, ID: id}, nil
}

// GenerateChannelKey returns a fresh key for tag with an eight character
// upper-case base-36 id, short enough to read out over a radio.
func GenerateChannelKey(tag string) (string, error) {
	if tag == "" {
		return "", fmt.Errorf("%w: empty provider tag", ErrUnknownProvider)
	}
	max := big.NewInt(int64(len(keyAlphabet)))
	var b strings.Builder
	b.Grow(keyIDLength)
	for i := 0; i < keyIDLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate channel key: %w", err)
		}
		b.WriteByte(keyAlphabet[n.Int64()])
	}
	return tag + "-" + b.String(), nil
}
