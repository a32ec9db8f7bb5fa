package remote

import (
	"net/url"
	"strconv"
	"strings"
)

// NextPage extracts the page number of the rel="next" entry of an RFC 8288
// Link header. ok is false when there is no parseable next relation.
func NextPage(header string) (page int, ok bool) {
	for _, part := range strings.Split(header, ",") {
		segs := strings.Split(part, ";")
		target := strings.TrimSpace(segs[0])
		if len(target) < 2 || target[0] != '<' || target[len(target)-1] != '>' {
			continue
		}
		if !hasRel(segs[1:], "next") {
			continue
		}
		u, err := url.Parse(target[1 : len(target)-1])
		if err != nil {
			continue
		}
		n, err := strconv.Atoi(u.Query().Get("page"))
		if err != nil || n < 1 {
			continue
		}
		return n, true
	}
	return 0, false
}

func hasRel(params []string, want string) bool {
	for _, p := range params {
		k, v, found := strings.Cut(strings.TrimSpace(p), "=")
		if !found || !strings.EqualFold(strings.TrimSpace(k), "rel") {
			continue
		}
		for _, r := range strings.Fields(strings.Trim(strings.TrimSpace(v), `"`)) {
			if strings.EqualFold(r, want) {
				return true
			}
		}
	}
	return false
}
