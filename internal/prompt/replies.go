package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/easeaico/storefront-cs/internal/utils"
)

// Reply template keys.
const (
	KeyAskRegionR1        = "ask_region_r1"
	KeyAskRegionR2        = "ask_region_r2"
	KeyAskRegionChoice    = "ask_region_choice"
	KeyAskRegionR1Reset   = "ask_region_r1_reset"
	KeyAskDistrictR1      = "ask_sh_district_r1"
	KeyAskDistrictR2      = "ask_sh_district_r2"
	KeyAskDistrictChoice  = "ask_sh_district_choice"
	KeyAskDistrictR1Reset = "ask_sh_district_r1_reset"

	KeyStoreRecommend     = "store_recommend"
	KeyNonCoverageContact = "non_coverage_contact"
	KeyNonCoverageWarmup  = "out_of_coverage_warmup"
	KeyNonCoverageRemind  = "out_of_coverage_remind"

	KeyContactIntro     = "contact_intro"
	KeyContactFollowup1 = "contact_followup_1"
	KeyContactFollowup2 = "contact_followup_2"

	KeyPurchaseKnownGeoContact = "purchase_known_geo_contact"
	KeyPurchaseContactRemind   = "purchase_contact_remind"
	KeyPurchaseRemoteContact   = "purchase_remote_contact_image"
	KeyPurchaseRemoteRemind    = "purchase_remote_remind"
	KeyPurchaseNorthRemind     = "purchase_north_circle_remind"
	KeyPurchaseBothFirstHint   = "purchase_after_both_first_hint"

	KeyAfterSalesRemote   = "after_sales_remote_support"
	KeyAfterSalesDetail   = "after_sales_detail_guide"
	KeyAfterSalesFollowup = "after_sales_followup"

	KeyContactCompliance = "contact_compliance"
	KeyShippingNotice    = "shipping_notice"
	KeyLLMFallback       = "llm_fallback"
	KeyGeneralEmpty      = "general_empty"
	KeyRepeatPool        = "repeat_pool"
)

const lastResortReply = "姐姐我在呢🌹"

var defaultReplies = map[string]string{
	KeyAskRegionR1:        "姐姐，您在什么城市/区域呀？方便告诉我吗？我可以帮您针对性推荐门店，我们目前北京朝阳1家、上海5家（静安、人广、虹口、五角场、徐汇）🌹",
	KeyAskRegionR2:        "姐姐，我再帮您确认一下，您现在在哪个城市或区域呀？我按距离给您匹配最近门店～🌹",
	KeyAskRegionChoice:    "姐姐您在静安/徐汇/杨浦附近吗？不确定也没关系，告诉我个地标我也能帮您匹配～🌹",
	KeyAskRegionR1Reset:   "姐姐我再帮您快速确认下，您在什么城市或区域呀？我马上按距离给您匹配最近门店～🌹",
	KeyAskDistrictR1:      "姐姐您在上海哪个区呀？我帮您匹配最近门店～🌹",
	KeyAskDistrictR2:      "姐姐再确认下，您在上海哪个区或附近地标呢？我马上给您对门店～🌹",
	KeyAskDistrictChoice:  "姐姐您在静安/徐汇/杨浦附近吗？不确定也没关系，告诉我个地标我也能帮您匹配～🌹",
	KeyAskDistrictR1Reset: "姐姐我再确认下，您在上海哪个区呀？我这边马上帮您匹配最近门店～🌹",

	KeyStoreRecommend:     "姐姐，推荐您去{store_name}，我给您发一张位置图，您跟着图走会更直观～🌹",
	KeyNonCoverageContact: "姐姐，{region}暂时没有我们的门店，目前假发是需要根据头围和脸型进行私人定制的，您可以看看下面图中画圈圈的地方，会有专门的老师跟您远程鉴定～💗",
	KeyNonCoverageWarmup:  "姐姐，{region}暂时没有我们的门店，我们目前在北京朝阳有1家、上海有5家门店，假发需要根据头围和脸型私人定制，您需要的话我可以帮您安排老师远程鉴定哦🌹",
	KeyNonCoverageRemind:  "姐姐，{region}暂时没有我们的门店，您看下我刚发的联系方式图，按图添加后老师会远程帮您鉴定～💗",

	KeyContactIntro:     "姐姐我给您发一张联系方式图，您按图添加后我这边一对一继续跟进您呀😊",
	KeyContactFollowup1: "姐姐您看下我刚发的联系方式图，按图添加后跟我说一声，我马上接着帮您安排😊",
	KeyContactFollowup2: "姐姐刚刚那张联系方式图您点开就能看到，添加后回我一句，我立刻继续帮您跟进😊",

	KeyPurchaseKnownGeoContact: "姐姐，到店前需要先预约老师帮您量头围定制，我给您发一张联系方式图，您按图添加后我帮您安排时间😊",
	KeyPurchaseContactRemind:   "姐姐您按我刚发的联系方式图添加一下，我这边马上帮您预约到店时间😊",
	KeyPurchaseRemoteContact:   "姐姐不在门店附近也没关系，我们可以远程定制，我给您发一张联系方式图，按图添加后老师一对一帮您远程鉴定😊",
	KeyPurchaseRemoteRemind:    "姐姐不方便到店也可以远程定制，您按我刚发的联系方式图添加，老师会一对一帮您远程鉴定😊",
	KeyPurchaseNorthRemind:     "姐姐您看下我刚发的图里画圈的地方，按图添加后老师会一对一帮您远程鉴定😊",
	KeyPurchaseBothFirstHint:   "姐姐门店位置图和联系方式图都给您发过啦，您看下图中画圈圈的地方，按图添加后我马上帮您安排😊",

	KeyAfterSalesRemote:   "姐姐售后您放心，不在门店附近也可以远程指导护理，您先说下现在遇到的具体情况呀🌹",
	KeyAfterSalesDetail:   "姐姐出现毛躁打结的话，先用宽齿梳从发尾往上慢慢梳开，再用专用护理液清洗后自然晾干，避免高温直吹哦🌹",
	KeyAfterSalesFollowup: "姐姐您按刚才的方法试一下，有不清楚的随时跟我说，我一直帮您跟进呀🌹",

	KeyContactCompliance: "姐姐我们先在这里沟通就好，我先帮您把需求和方案梳理清楚呀🌹",
	KeyShippingNotice:    "姐姐我们是到店定制哦。🌹",
	KeyLLMFallback:       "姐姐抱歉，系统现在有点忙，您稍后再发我马上跟进您哦🌹",
	KeyGeneralEmpty:      "姐姐我在呢，您告诉我最关心的是价格、佩戴体验还是门店位置呀🌹",
}

var defaultRepeatPool = []string{
	"姐姐我在，您可以继续说下最关心的问题呀🌹",
	"姐姐收到，我帮您一步步梳理最合适的方案呀🌹",
	"姐姐明白，我先把关键点给您讲清楚呀🌹",
}

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// Replies holds the canned reply templates. Overrides loaded from disk are
// merged over the built-in defaults.
type Replies struct {
	path string

	mu         sync.RWMutex
	texts      map[string]string
	repeatPool []string
	loaded     bool
}

// NewReplies returns templates backed by an optional override file.
func NewReplies(path string) *Replies {
	return &Replies{
		path:       path,
		texts:      maps.Clone(defaultReplies),
		repeatPool: append([]string(nil), defaultRepeatPool...),
	}
}

// Reload rereads the override file. The defaults stay in effect for every
// key the file does not set, and entirely when the file is unreadable.
func (r *Replies) Reload() error {
	texts := maps.Clone(defaultReplies)
	pool := append([]string(nil), defaultRepeatPool...)

	raw, err := readOverrides(r.path)
	for key, value := range raw {
		switch v := value.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				texts[key] = v
			}
		case []any:
			if key != KeyRepeatPool {
				continue
			}
			var lines []string
			for _, item := range v {
				if s := strings.TrimSpace(fmt.Sprint(item)); s != "" {
					lines = append(lines, s)
				}
			}
			if len(lines) > 0 {
				pool = lines
			}
		}
	}

	r.mu.Lock()
	r.texts = texts
	r.repeatPool = pool
	r.loaded = err == nil && raw != nil
	r.mu.Unlock()
	return err
}

func readOverrides(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read reply templates: %w", err)
	}
	out := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &out)
	default:
		err = json.Unmarshal(b, &out)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode reply templates: %w", err)
	}
	return out, nil
}

// Loaded reports whether an override file was applied.
func (r *Replies) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// Render fills {name} placeholders from vars and collapses whitespace.
// Placeholders without a value render empty.
func (r *Replies) Render(key string, vars map[string]string) string {
	r.mu.RLock()
	tmpl := r.texts[key]
	r.mu.RUnlock()

	text := placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		return vars[m[1:len(m)-1]]
	})
	text = utils.CollapseSpaces(text)
	if text == "" {
		if key == KeyGeneralEmpty {
			return lastResortReply
		}
		return r.Render(KeyGeneralEmpty, nil)
	}
	return text
}

// RepeatPool returns the generic continuation lines used when a reply would
// repeat.
func (r *Replies) RepeatPool() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.repeatPool...)
}
