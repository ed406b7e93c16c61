package query

import (
	"net/mail"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"

	"incidentdb/internal/catalog"
	apperrors "incidentdb/pkg/errors"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// parseValue converts raw into the value bound for kind. Timestamps without
// an offset are read in loc and bound in UTC.
func parseValue(key string, kind catalog.Kind, raw string, loc *time.Location) (interface{}, error) {
	raw = strings.TrimSpace(raw)

	switch kind {
	case catalog.KindInteger:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, invalidValue(key, raw, "expected an integer")
		}
		return n, nil

	case catalog.KindDatetime:
		t, err := parseTime(raw, loc)
		if err != nil {
			return nil, invalidValue(key, raw, "expected a date or timestamp")
		}
		return t, nil

	case catalog.KindIP:
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, invalidValue(key, raw, "expected an IP address")
		}
		return addr.String(), nil

	case catalog.KindCIDR:
		prefix, err := netip.ParsePrefix(raw)
		if err != nil {
			addr, aerr := netip.ParseAddr(raw)
			if aerr != nil {
				return nil, invalidValue(key, raw, "expected a network in CIDR notation")
			}
			prefix = netip.PrefixFrom(addr, addr.BitLen())
		}
		return prefix.Masked().String(), nil

	case catalog.KindEmail:
		addr, err := mail.ParseAddress(raw)
		if err != nil {
			return nil, invalidValue(key, raw, "expected an e-mail address")
		}
		return addr.Address, nil

	default:
		return raw, nil
	}
}

func parseTime(raw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := cast.ToTimeInDefaultLocationE(raw, loc)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func invalidValue(key, raw, reason string) error {
	return apperrors.ErrInvalidFilterValue.
		WithMessagef("invalid value for %s: %s", key, reason).
		WithDetail("key", key).
		WithDetail("value", raw)
}

// likePattern escapes LIKE wildcards so raw matches literally.
func likePattern(raw string) string {
	return likeEscaper.Replace(raw)
}
