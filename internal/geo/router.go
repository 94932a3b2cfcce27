// Package geo maps free-text location mentions to store codes.
package geo

import (
	"regexp"
	"strings"

	"github.com/easeaico/storefront-cs/internal/types"
)

var (
	negBothPattern = regexp.MustCompile(
		`不(?:在|是)(?:北京|京)(?:和|或|跟|与|及|、|/)?(?:上海|沪)|不(?:在|是)(?:上海|沪)(?:和|或|跟|与|及|、|/)?(?:北京|京)`)
	negBeijingPattern  = regexp.MustCompile(`不(?:在|是)(?:北京|京)`)
	negShanghaiPattern = regexp.MustCompile(`不(?:在|是)(?:上海|沪)`)
	provincePattern    = regexp.MustCompile(`(\p{Han}{2,3})省`)
)

// Router resolves routes. It holds no state and is safe for concurrent use.
type Router struct{}

// NewRouter returns a Router.
func NewRouter() *Router {
	return &Router{}
}

// Resolve maps text to a route. The first matching rule wins:
// Beijing district, northern fallback, Shanghai district alias, bare 上海,
// Jiangsu/Zhejiang, other recognized region, then unknown.
// A negated city ("不在北京") disables its rules before matching.
func (r *Router) Resolve(text string) types.Route {
	rest, negBeijing, negShanghai := stripNegations(strings.TrimSpace(text))

	if !negBeijing {
		if tok := firstToken(rest, beijingTokens); tok != "" {
			return coverage("北京", types.StoreBeijing, ReasonBeijingAllDistrict, tok)
		}
	}
	if tok := firstToken(rest, northFallbackTokens); tok != "" {
		return coverage("北京", types.StoreBeijing, ReasonNorthFallback, tok)
	}

	if !negShanghai {
		for _, alias := range shanghaiAliases {
			if strings.Contains(rest, alias.token) {
				return coverage("上海", alias.store, ReasonShanghaiDistrict, alias.token)
			}
		}
		if strings.Contains(rest, "上海") {
			return types.Route{
				City:           "上海",
				TargetStore:    types.StoreUnknown,
				Reason:         ReasonShanghaiNeedDistrict,
				RouteType:      RouteNeedDistrict,
				DetectedRegion: "上海",
			}
		}
	}

	if tok := firstToken(rest, jiangzheTokens); tok != "" {
		return coverage(tok, types.StoreRenmin, ReasonJiangzhe, tok)
	}

	if region := detectRegion(rest); region != "" {
		return outOfCoverage(region)
	}

	switch {
	case negBeijing && negShanghai:
		return outOfCoverage("非沪京地区")
	case negBeijing:
		return outOfCoverage("非北京地区")
	case negShanghai:
		return outOfCoverage("非上海地区")
	}

	return types.Route{
		TargetStore: types.StoreUnknown,
		Reason:      ReasonUnknown,
		RouteType:   RouteUnknown,
	}
}

func stripNegations(text string) (string, bool, bool) {
	var negBeijing, negShanghai bool
	if negBothPattern.MatchString(text) {
		negBeijing, negShanghai = true, true
		text = negBothPattern.ReplaceAllString(text, " ")
	}
	if negBeijingPattern.MatchString(text) {
		negBeijing = true
		text = negBeijingPattern.ReplaceAllString(text, " ")
	}
	if negShanghaiPattern.MatchString(text) {
		negShanghai = true
		text = negShanghaiPattern.ReplaceAllString(text, " ")
	}
	return text, negBeijing, negShanghai
}

func detectRegion(text string) string {
	if tok := firstToken(text, outOfCoverageTokens); tok != "" {
		return tok
	}
	if m := provincePattern.FindStringSubmatch(text); m != nil {
		name := m[1]
		if !strings.ContainsAny(name, "哪什么那这个些") {
			return name + "省"
		}
	}
	return ""
}

func firstToken(text string, tokens []string) string {
	for _, tok := range tokens {
		if strings.Contains(text, tok) {
			return tok
		}
	}
	return ""
}

func coverage(city, store, reason, region string) types.Route {
	return types.Route{
		City:           city,
		TargetStore:    store,
		Reason:         reason,
		RouteType:      RouteCoverage,
		DetectedRegion: region,
	}
}

func outOfCoverage(region string) types.Route {
	return types.Route{
		City:           region,
		TargetStore:    types.StoreUnknown,
		Reason:         ReasonOutOfCoverage,
		RouteType:      RouteNonCoverage,
		DetectedRegion: region,
	}
}

// LooksLikeGeoReply reports whether text reads as an answer to a location question.
func LooksLikeGeoReply(text string, route types.Route) bool {
	if route.Reason != ReasonUnknown {
		return true
	}
	var b strings.Builder
	for _, r := range text {
		if isWordRune(r) {
			b.WriteRune(r)
		}
	}
	normalized := b.String()
	if normalized == "" {
		return false
	}
	for _, tok := range geoReplyHints {
		if strings.Contains(normalized, tok) {
			return true
		}
	}
	return false
}

var geoReplyHints = []string{
	"北京", "上海", "徐汇", "静安", "虹口", "杨浦", "五角场", "人广", "人民广场",
	"河北", "天津", "内蒙古", "江苏", "浙江", "苏州", "杭州", "东北",
	"省", "市", "区", "县", "州", "盟", "旗",
}

func isWordRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
		(r >= 0x4e00 && r <= 0x9fa5)
}
